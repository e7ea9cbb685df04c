package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gosuri/uitable"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/imaging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/tle"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"github.com/spf13/cobra"
)

const (
	satelliteID = "target"
	stationID   = "site"
)

// elementFlags selects where the element set comes from.
type elementFlags struct {
	file     string
	norad    int
	endpoint string
}

func (f *elementFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "tle-file", "", "File holding a two- or three-line element set.")
	cmd.Flags().IntVar(&f.norad, "norad", 0, "NORAD catalog number to fetch from Celestrak.")
	cmd.Flags().StringVar(&f.endpoint, "celestrak-url", tle.DefaultCelestrakURL, "GP element endpoint used with --norad.")
}

func (f *elementFlags) load(ctx context.Context) (*tle.ElementSet, error) {
	switch {
	case f.file != "":
		raw, err := os.ReadFile(f.file)
		if err != nil {
			return nil, err
		}
		return tle.Parse(string(raw))
	case f.norad > 0:
		src := tle.NewCelestrak(f.endpoint, &http.Client{Timeout: 30 * time.Second})
		return src.Fetch(ctx, f.norad)
	}
	return nil, errors.New("one of --tle-file or --norad is required")
}

// satellite wraps set as a catalog entry.
func satellite(set *tle.ElementSet) *model.Satellite {
	return &model.Satellite{
		ID:           satelliteID,
		Name:         set.Name,
		Status:       model.SatelliteActive,
		TLELine1:     set.Line1,
		TLELine2:     set.Line2,
		TLEUpdatedAt: set.Epoch,
	}
}

type siteFlags struct {
	lat, lon, alt float64
}

func (f *siteFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, what+" latitude in degrees.")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, what+" longitude in degrees.")
	cmd.Flags().Float64Var(&f.alt, "alt", 0, what+" altitude in metres.")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func (f *siteFlags) geodetic() model.Geodetic {
	return model.Geodetic{Latitude: f.lat, Longitude: f.lon, Altitude: f.alt}
}

func parseStart(s string) (time.Time, error) {
	if s == "" || s == "now" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--from must be RFC 3339: %w", err)
	}
	return t.UTC(), nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "passctl",
		Short:         "Predict overpasses and imaging opportunities from orbital elements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOverpassesCommand(), newImagingCommand(), newElementsCommand())
	return root
}

func newOverpassesCommand() *cobra.Command {
	var (
		elements elementFlags
		site     siteFlags
		from     string
		hours    float64
		minElev  float64
		minDur   float64
		maxCount int
	)
	cmd := &cobra.Command{
		Use:   "overpasses",
		Short: "List visibility windows over a ground station",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			set, err := elements.load(ctx)
			if err != nil {
				return err
			}
			start, err := parseStart(from)
			if err != nil {
				return err
			}

			catalog := kb.NewKnowledgeBase()
			if err := catalog.AddSatellite(satellite(set)); err != nil {
				return err
			}
			if err := catalog.AddGroundStation(&model.GroundStation{ID: stationID, Name: stationID, Location: site.geodetic(), Active: true}); err != nil {
				return err
			}

			windows, err := passes.NewPredictor(catalog).ComputeOverpasses(ctx, passes.Request{
				SatelliteID:        satelliteID,
				GroundStationID:    stationID,
				Start:              start,
				End:                start.Add(time.Duration(hours * float64(time.Hour))),
				MinElevationDeg:    minElev,
				MaxResults:         maxCount,
				MinDurationSeconds: minDur,
			})
			if err != nil {
				return err
			}
			if len(windows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no overpasses in range")
				return nil
			}

			table := uitable.New()
			table.AddRow("START (UTC)", "MAX ELEVATION AT", "END", "MAX EL", "DURATION", "AZ RISE", "AZ SET")
			for _, w := range windows {
				table.AddRow(
					w.StartTime.Format(time.DateTime),
					w.MaxElevationTime.Format(time.TimeOnly),
					w.EndTime.Format(time.TimeOnly),
					fmt.Sprintf("%.1f°", w.MaxElevationDeg),
					(time.Duration(w.DurationSeconds) * time.Second).String(),
					fmt.Sprintf("%.0f°", w.StartAzimuthDeg),
					fmt.Sprintf("%.0f°", w.EndAzimuthDeg),
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	elements.register(cmd)
	site.register(cmd, "Ground station")
	cmd.Flags().StringVar(&from, "from", "now", "Range start (RFC 3339 or \"now\").")
	cmd.Flags().Float64Var(&hours, "hours", 24, "Range length in hours.")
	cmd.Flags().Float64Var(&minElev, "min-elevation", 0, "Discard windows peaking below this elevation in degrees.")
	cmd.Flags().Float64Var(&minDur, "min-duration", 0, "Discard windows shorter than this many seconds.")
	cmd.Flags().IntVar(&maxCount, "max", 0, "Stop after this many windows; 0 lists all.")
	return cmd
}

func newImagingCommand() *cobra.Command {
	var (
		elements elementFlags
		target   siteFlags
		from     string
		hours    float64
		limit    float64
	)
	cmd := &cobra.Command{
		Use:   "imaging",
		Short: "Find the lowest off-nadir imaging instant of a target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			set, err := elements.load(ctx)
			if err != nil {
				return err
			}
			start, err := parseStart(from)
			if err != nil {
				return err
			}

			sat := satellite(set)
			opp, err := imaging.NewOptimizer().FindBestOpportunity(ctx, sat, target.geodetic(), start, time.Duration(hours*float64(time.Hour)))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			advice := imaging.Advise(opp, limit)
			if opp != nil {
				table := uitable.New()
				table.AddRow("IMAGING TIME (UTC)", opp.ImagingTime.Format(time.RFC3339))
				table.AddRow("OFF-NADIR", fmt.Sprintf("%.2f°", opp.OffNadirDeg))
				table.AddRow("GROUND DISTANCE", fmt.Sprintf("%.1f km", opp.GroundDistanceKm))
				table.AddRow("SLANT RANGE", fmt.Sprintf("%.1f km", opp.SlantRangeKm))
				table.AddRow("SUB-SATELLITE POINT", fmt.Sprintf("%.4f, %.4f", opp.SatelliteLatitude, opp.SatelliteLongitude))
				table.AddRow("ALTITUDE", fmt.Sprintf("%.1f km", opp.SatelliteAltitudeKm))
				fmt.Fprintln(out, table)
			}
			if advice.Message != "" {
				fmt.Fprintln(out, advice.Message)
			}
			if warning := imaging.TLEAgeWarning(sat, time.Now()); warning != "" {
				fmt.Fprintln(out, warning)
			}
			return nil
		},
	}
	elements.register(cmd)
	target.register(cmd, "Target")
	cmd.Flags().StringVar(&from, "from", "now", "Search start (RFC 3339 or \"now\").")
	cmd.Flags().Float64Var(&hours, "hours", 24, "Search length in hours.")
	cmd.Flags().Float64Var(&limit, "max-off-nadir", imaging.DefaultMaxOffNadirDeg, "Acceptable off-nadir limit in degrees.")
	return cmd
}

func newElementsCommand() *cobra.Command {
	var elements elementFlags
	cmd := &cobra.Command{
		Use:   "elements",
		Short: "Print an element set and its epoch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := elements.load(cmd.Context())
			if err != nil {
				return err
			}
			table := uitable.New()
			table.AddRow("NAME", set.Name)
			table.AddRow("EPOCH", set.Epoch.Format(time.RFC3339))
			table.AddRow("AGE", time.Since(set.Epoch).Round(time.Minute).String())
			table.AddRow("LINE 1", set.Line1)
			table.AddRow("LINE 2", set.Line2)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	elements.register(cmd)
	return cmd
}
