package cli

import (
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/eansheet/eansheet/jobs"
)

func newWarmupCommand(opts *Options) *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Queue a one-off warmup of the barcode service",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			info, err := client.EnqueueWarmup(cmd.Context(), "manual")
			if err != nil {
				return fmt.Errorf("enqueue warmup: %w", err)
			}
			_, _ = fmt.Fprintf(opts.Stdout, "queued %s on %s (id %s)\n", info.Type, info.Queue, info.ID)
			return nil
		},
	}
	defaultAddr := os.Getenv("REDIS_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:6379"
	}
	cmd.Flags().StringVar(&redisAddr, "redis", defaultAddr, "redis address of the job queue")
	return cmd
}
