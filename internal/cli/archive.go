package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/streamkeeper/internal/control"
	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
)

var (
	archiveStreams   []string
	archiveIDs       []string
	archiveOlderThan time.Duration
	archiveAll       bool
	archiveLimit     int64
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive stream messages by removing them from the stream and storing them in the archive database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(archiveIDs) == 0 && archiveOlderThan <= 0 && !archiveAll {
			return errors.New("one of --id, --older-than or --all is required")
		}
		return withApp(cmd, runArchive)
	},
}

func init() {
	archiveCmd.Flags().StringSliceVar(&archiveStreams, "stream", nil, "stream to archive from (repeatable)")
	archiveCmd.Flags().StringSliceVar(&archiveIDs, "id", nil, "message id to archive (repeatable)")
	archiveCmd.Flags().DurationVar(&archiveOlderThan, "older-than", 0, "archive messages older than this age")
	archiveCmd.Flags().BoolVar(&archiveAll, "all", false, "archive every message on the stream")
	archiveCmd.Flags().Int64Var(&archiveLimit, "limit", 0, "maximum number of messages per stream (0 = no limit)")
	_ = archiveCmd.MarkFlagRequired("stream")

	rootCmd.AddCommand(archiveCmd)
}

func runArchive(ctx context.Context, app *control.App) error {
	archiver, err := app.Archiver()
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range archiveStreams {
		stream := app.Streams().Stream(name)

		msgs, err := selectMessages(ctx, stream)
		if err != nil {
			return err
		}

		for _, msg := range msgs {
			if err := archiver.Archive(ctx, msg); err != nil {
				failed++
				slog.Error(fmt.Sprintf("Message [%s] from the '%s' stream could not be archived", msg.ID, name), "error", err)
				continue
			}
			slog.Info(fmt.Sprintf("Message [%s] has been archived from the '%s' stream.", msg.ID, name))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d messages could not be archived", failed)
	}
	return nil
}

func selectMessages(ctx context.Context, stream storage.StreamAccessor) ([]*domain.Message, error) {
	if len(archiveIDs) > 0 {
		var msgs []*domain.Message
		for _, id := range archiveIDs {
			msg, err := stream.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if msg == nil {
				slog.Warn("Message not found on stream", "stream", stream.Name(), "id", id)
				continue
			}
			msgs = append(msgs, msg)
		}
		return msgs, nil
	}

	end := "+"
	if archiveOlderThan > 0 {
		cutoff := time.Now().Add(-archiveOlderThan).UnixMilli()
		end = strconv.FormatInt(cutoff-1, 10)
	}
	return stream.Range(ctx, "-", end, archiveLimit)
}
