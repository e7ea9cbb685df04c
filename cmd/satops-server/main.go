package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/config"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "satops-server",
		Short:         "Flight plan orchestration daemon",
		Long:          "satops-server accepts ground-station connections, computes overpasses and imaging opportunities, and transmits approved flight plans at their scheduled time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			log := opts.Log.Logger()
			if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
				log.Debug(cmd.Context(), fmt.Sprintf(format, args...))
			})); err != nil {
				log.Warn(cmd.Context(), "failed to set GOMAXPROCS", logging.Err(err))
			}
			return run(cmd.Context(), opts, log)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML or JSON config file.")
	config.New().AddFlags(cmd.Flags())
	return cmd
}
