package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/streamkeeper/internal/control"
	"github.com/vietddude/streamkeeper/internal/failure"
)

var (
	failedStream   string
	failedID       string
	failedReceiver string
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Inspect and retry failed messages",
}

var failedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, listFailed)
	},
}

var failedRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry one failed message with its receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, retryFailed)
	},
}

var failedRetryAllCmd = &cobra.Command{
	Use:   "retry-all",
	Short: "Retry every failed message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, retryAllFailed)
	},
}

var failedForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove failed message records without retrying them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, forgetFailed)
	},
}

func init() {
	for _, c := range []*cobra.Command{failedRetryCmd, failedForgetCmd} {
		c.Flags().StringVar(&failedStream, "stream", "", "stream the message was read from")
		c.Flags().StringVar(&failedID, "id", "", "message id")
		c.Flags().StringVar(&failedReceiver, "receiver", "", "receiver name")
		_ = c.MarkFlagRequired("stream")
		_ = c.MarkFlagRequired("id")
		_ = c.MarkFlagRequired("receiver")
	}

	failedCmd.AddCommand(failedListCmd, failedRetryCmd, failedRetryAllCmd, failedForgetCmd)
	rootCmd.AddCommand(failedCmd)
}

func listFailed(ctx context.Context, app *control.App) error {
	records, err := app.Handler().List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		slog.Info("No failed messages")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTREAM\tRECEIVER\tERROR")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Stream, r.Receiver, r.Error)
	}
	return w.Flush()
}

func retryFailed(ctx context.Context, app *control.App) error {
	outcome, err := app.Handler().Retry(ctx, failedStream, failedID, failedReceiver)
	if err != nil {
		return err
	}

	switch outcome {
	case failure.OutcomeSucceeded:
		slog.Info("Message retried successfully", "stream", failedStream, "id", failedID, "receiver", failedReceiver)
	case failure.OutcomeFailed:
		slog.Warn("Message failed again and was put back", "stream", failedStream, "id", failedID, "receiver", failedReceiver)
	default:
		slog.Warn("Message was not retried, receiver or message not found",
			"stream", failedStream, "id", failedID, "receiver", failedReceiver)
	}
	return nil
}

func retryAllFailed(ctx context.Context, app *control.App) error {
	report, err := app.Handler().RetryAll(ctx)
	slog.Info("Retry pass complete",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"invalid", report.Invalid,
		"duration", report.Duration,
	)
	return err
}

func forgetFailed(ctx context.Context, app *control.App) error {
	records, err := app.Handler().List(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, r := range records {
		if !r.Matches(failedStream, failedID, failedReceiver) {
			continue
		}
		if err := app.Handler().Forget(ctx, r); err != nil {
			return err
		}
		removed++
	}
	slog.Info("Removed failed message records", "count", removed)
	return nil
}
