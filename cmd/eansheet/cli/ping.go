package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eansheet/eansheet/internal/app"
	"github.com/eansheet/eansheet/internal/generator"
	"github.com/eansheet/eansheet/report"
)

// pingTimeout bounds the ping command when no flag is given.
const pingTimeout = 10 * time.Second

func newPingCommand(opts *Options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the barcode service answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadClientConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			start := time.Now()
			if err := report.NewClient(cfg.BackendURL).Ping(ctx); err != nil {
				return reportPing(opts, err)
			}
			_, _ = fmt.Fprintf(opts.Stdout, "backend reachable in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", pingTimeout, "give up after this long")
	return cmd
}

func reportPing(opts *Options, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = generator.ErrTimeout
	}
	return reportFailure(opts, err)
}
