package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"idPhoto/client/kafka"
)

func newEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow session events from other idphoto processes (requires KAFKA_BROKERS)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(a.cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is not set")
			}

			consumer, err := kafka.NewConsumer(a.cfg.KafkaBrokers, a.cfg.KafkaGroup, a.logger)
			if err != nil {
				return fmt.Errorf("connect kafka: %w", err)
			}
			defer consumer.Close()

			fmt.Fprintln(out, formatInfo("Following "+a.cfg.KafkaTopic))
			return consumer.Consume(ctx, a.cfg.KafkaTopic, printEvent(out))
		},
	}
}

func printEvent(out io.Writer) kafka.EventHandler {
	return func(_ context.Context, e *kafka.SessionEvent) error {
		ts := e.FinishedAt.Local().Format("15:04:05")
		switch e.Status {
		case "completed":
			_, err := fmt.Fprintln(out, formatMuted(ts)+" "+formatSuccess(e.Filename+" "+e.TaskID))
			return err
		default:
			_, err := fmt.Fprintln(out, formatMuted(ts)+" "+formatError(e.Filename+": "+e.Error))
			return err
		}
	}
}
