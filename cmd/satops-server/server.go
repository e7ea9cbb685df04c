package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/flightplan-orchestrator/core"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/archive"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/compute"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/config"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/grpcserver"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/httpapi"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/imaging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/notify"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/scheduler"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/state"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/tle"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, opts *config.Options, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, opts.Tracing.Config(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewOrchestratorCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	catalog := kb.NewKnowledgeBase()
	if err := seedCatalog(catalog, opts, time.Now().UTC()); err != nil {
		return err
	}
	log.Info(ctx, "catalog seeded",
		logging.Int("satellites", len(opts.Satellites)),
		logging.Int("ground_stations", len(opts.Stations)),
	)

	store := state.NewStore()
	pool := compute.NewPool(opts.Planning.Workers)
	predictor := passes.NewPredictor(catalog,
		passes.WithPool(pool),
		passes.WithMetrics(metrics),
		passes.WithLogger(log),
	)
	optimizer := imaging.NewOptimizer(
		imaging.WithPool(pool),
		imaging.WithMetrics(metrics),
		imaging.WithLogger(log),
	)

	serviceOpts := []flightplan.Option{
		flightplan.WithConfig(opts.Planning.Config()),
		flightplan.WithLogger(log),
		flightplan.WithMetrics(metrics),
	}
	if opts.MQTT.Enabled {
		cfg := opts.MQTT.Config()
		cm, err := notify.Connect(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cm.Disconnect(disconnectCtx)
		}()
		serviceOpts = append(serviceOpts, flightplan.WithPublisher(notify.NewPublisher(cm, cfg, log)))
	}
	plans := flightplan.NewService(store, catalog, predictor, optimizer, serviceOpts...)

	registry := gateway.NewRegistry(
		gateway.WithLogger(log),
		gateway.WithMetrics(metrics),
		gateway.WithWriteTimeout(opts.Gateway.WriteTimeout),
		gateway.WithHandshakeTimeout(opts.Gateway.HandshakeTimeout),
	)

	schedulerOpts := []scheduler.Option{
		scheduler.WithConfig(opts.Scheduler.Config()),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(metrics),
	}
	if opts.S3.Enabled {
		scripts, err := openArchive(ctx, opts.S3, log)
		if err != nil {
			return err
		}
		schedulerOpts = append(schedulerOpts, scheduler.WithArchive(scripts))
	}
	sched := scheduler.New(plans, catalog, registry, schedulerOpts...)

	api := httpapi.New(registry, httpapi.NewStationAuthenticator(catalog),
		httpapi.WithLogger(log),
		httpapi.WithMetrics(metrics),
		httpapi.WithSessionContext(ctx),
	)
	httpSrv := &http.Server{
		Addr:              opts.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: opts.HTTP.ReadTimeout,
	}

	var (
		grpcSrv *grpcserver.Server
		grpcLis net.Listener
	)
	if opts.GRPC.Enabled {
		grpcOpts := []grpcserver.Option{grpcserver.WithLogger(log), grpcserver.WithMetrics(metrics)}
		if opts.Tracing.Enabled {
			grpcOpts = append(grpcOpts, grpcserver.WithOTel())
		}
		ops := grpcserver.NewOperations(registry, passes.NewService(predictor, store), plans)
		grpcSrv = grpcserver.New(ops, grpcOpts...)
		if grpcLis, err = net.Listen("tcp", opts.GRPC.Addr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", opts.GRPC.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "serving station gateway and status API", logging.String("addr", opts.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if grpcSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving gRPC operations", logging.String("addr", opts.GRPC.Addr))
			return grpcSrv.Serve(gctx, grpcLis)
		})
	}

	g.Go(func() error { return sched.Run(gctx) })

	if opts.TLE.Enabled {
		source := tle.NewCelestrak(opts.TLE.URL, &http.Client{Timeout: opts.TLE.Timeout})
		refresher := tle.NewRefresher(catalog, source,
			tle.WithInterval(opts.TLE.Interval),
			tle.WithPause(opts.TLE.Pause),
			tle.WithLogger(log),
			tle.WithMetrics(metrics),
		)
		g.Go(func() error { return ignoreCanceled(refresher.Run(gctx)) })
	}

	err = g.Wait()
	log.Info(context.Background(), "satops-server stopped")
	return ignoreCanceled(err)
}

func openArchive(ctx context.Context, opts *config.S3Options, log logging.Logger) (*archive.Store, error) {
	cfg := opts.Config()
	client, err := archive.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	scripts := archive.New(client, cfg.Bucket, cfg.Prefix, log)
	if err := scripts.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("prepare archive bucket: %w", err)
	}
	return scripts, nil
}

// seedCatalog registers the configured stations and satellites.
func seedCatalog(catalog *kb.KnowledgeBase, opts *config.Options, now time.Time) error {
	for _, s := range opts.Stations {
		gs := &model.GroundStation{
			ID:   s.ID,
			Name: s.Name,
			Location: model.Geodetic{
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
				Altitude:  s.AltitudeM,
			},
			Active:    !s.Inactive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if s.Secret != "" {
			hash, err := httpapi.HashSecret(s.Secret, 0)
			if err != nil {
				return fmt.Errorf("hash secret for station %q: %w", s.ID, err)
			}
			gs.CredentialHash = hash
		}
		if err := catalog.AddGroundStation(gs); err != nil {
			return fmt.Errorf("seed station: %w", err)
		}
	}
	for _, s := range opts.Satellites {
		sat := &model.Satellite{
			ID:        s.ID,
			Name:      s.Name,
			NoradID:   s.NoradID,
			Status:    model.SatelliteActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if s.TLELine1 != "" {
			epoch, err := core.ParseTLE(s.TLELine1, s.TLELine2)
			if err != nil {
				return fmt.Errorf("satellite %q: %w", s.ID, err)
			}
			sat.TLELine1, sat.TLELine2, sat.TLEUpdatedAt = s.TLELine1, s.TLELine2, epoch
		}
		if err := catalog.AddSatellite(sat); err != nil {
			return fmt.Errorf("seed satellite: %w", err)
		}
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
