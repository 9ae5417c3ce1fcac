package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/streamkeeper/internal/control"
	"github.com/vietddude/streamkeeper/internal/core/domain"
)

var (
	archivedStream string
	archivedID     string
)

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "Browse, restore and purge archived messages",
}

var archivedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived messages, optionally for one stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, listArchived)
	},
}

var archivedShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print one archived message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, showArchived)
	},
}

var archivedRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Put an archived message back on its stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			archiver, err := app.Archiver()
			if err != nil {
				return err
			}
			if err := archiver.Restore(ctx, archivedStream, archivedID); err != nil {
				return err
			}
			slog.Info(fmt.Sprintf("Message [%s] has been restored to the '%s' stream.", archivedID, archivedStream))
			return nil
		})
	},
}

var archivedPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete an archived message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			archiver, err := app.Archiver()
			if err != nil {
				return err
			}
			if err := archiver.Purge(ctx, archivedStream, archivedID); err != nil {
				return err
			}
			slog.Info(fmt.Sprintf("Message [%s] has been purged from the '%s' archive.", archivedID, archivedStream))
			return nil
		})
	},
}

func init() {
	archivedListCmd.Flags().StringVar(&archivedStream, "stream", "", "only list messages of this stream")

	for _, c := range []*cobra.Command{archivedShowCmd, archivedRestoreCmd, archivedPurgeCmd} {
		c.Flags().StringVar(&archivedStream, "stream", "", "stream (event name) of the message")
		c.Flags().StringVar(&archivedID, "id", "", "message id")
		_ = c.MarkFlagRequired("stream")
		_ = c.MarkFlagRequired("id")
	}

	archivedCmd.AddCommand(archivedListCmd, archivedShowCmd, archivedRestoreCmd, archivedPurgeCmd)
	rootCmd.AddCommand(archivedCmd)
}

func listArchived(ctx context.Context, app *control.App) error {
	repo, err := app.ArchiveRepo()
	if err != nil {
		return err
	}

	var msgs []*domain.Message
	if archivedStream != "" {
		msgs, err = repo.FindMany(ctx, archivedStream)
	} else {
		msgs, err = repo.All(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "STREAM\tID\tSIZE")
	for _, m := range msgs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", m.EventName, m.ID, len(m.Payload))
	}
	return w.Flush()
}

func showArchived(ctx context.Context, app *control.App) error {
	repo, err := app.ArchiveRepo()
	if err != nil {
		return err
	}

	msg, err := repo.Find(ctx, archivedStream, archivedID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("message %s not found in the '%s' archive", archivedID, archivedStream)
	}

	_, _ = fmt.Fprintf(os.Stdout, "stream: %s\nid: %s\n", msg.EventName, msg.ID)
	for k, v := range msg.Meta() {
		_, _ = fmt.Fprintf(os.Stdout, "%s: %s\n", k, v)
	}
	_, _ = fmt.Fprintf(os.Stdout, "data: %s\n", msg.Payload)
	return nil
}
