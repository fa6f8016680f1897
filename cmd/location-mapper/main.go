package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"location_mapper/platform/config"
	"location_mapper/platform/logger"
)

// errRunFailed marks a run that completed but must exit non-zero. Details are already logged.
var errRunFailed = errors.New("taxonomy run failed")

type app struct {
	cfg *config.Config
	log *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "location-mapper",
		Short:         "Rebuild the location taxonomy and alias index from the location search endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Env)
			return nil
		},
	}

	root.AddCommand(newRunCmd(a), newEnqueueCmd(a), newLookupCmd(a), newPurgeCacheCmd(a))
	return root
}
