package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"trademgr/internal/domain"
)

// BlobWriter is the narrow upload interface the archiver requires. *Writer
// satisfies it; tests substitute an in-memory implementation.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// JournalArchiver periodically drains old adjustment events from the journal
// into S3 as JSONL files and deletes the drained rows. Deletion happens only
// after the upload succeeds, so a failed cycle leaves the journal intact and
// the next cycle retries.
type JournalArchiver struct {
	journal domain.AdjustmentJournal
	writer  BlobWriter
	logger  *slog.Logger

	interval  time.Duration
	retention time.Duration
	batchSize int

	// Batches at least this large upload via multipart instead of one PutObject.
	multipartThreshold int64

	now func() time.Time
}

// ArchiverConfig tunes a JournalArchiver.
type ArchiverConfig struct {
	// Interval is how often an archive cycle runs.
	Interval time.Duration

	// Retention is how long events stay in the journal before archival.
	Retention time.Duration

	// BatchSize caps how many events one cycle drains.
	BatchSize int
}

// NewJournalArchiver creates an archiver that drains journal into writer.
func NewJournalArchiver(journal domain.AdjustmentJournal, writer BlobWriter, cfg ArchiverConfig, logger *slog.Logger) *JournalArchiver {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &JournalArchiver{
		journal:            journal,
		writer:             writer,
		logger:             logger.With(slog.String("component", "journal_archiver")),
		interval:           cfg.Interval,
		retention:          cfg.Retention,
		batchSize:          cfg.BatchSize,
		multipartThreshold: minPartSize,
		now:                time.Now,
	}
}

// Run archives on the configured interval until ctx is cancelled. It blocks;
// callers run it in a goroutine or an errgroup.
func (a *JournalArchiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started",
		slog.Duration("interval", a.interval),
		slog.Duration("retention", a.retention),
	)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if count, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive cycle failed", slog.String("error", err.Error()))
			} else if count > 0 {
				a.logger.InfoContext(ctx, "archive cycle complete", slog.Int64("events", count))
			}
		}
	}
}

// ArchiveOnce runs one archive cycle: list events older than the retention
// cutoff, upload them as one JSONL object (multipart when the payload reaches
// the S3 part-size minimum), then delete them. Returns how many events were
// archived.
func (a *JournalArchiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-a.retention)

	events, err := a.journal.ListBefore(ctx, cutoff, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(events[len(events)-1].CreatedAt)
	if int64(len(buf)) >= a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), "application/x-ndjson", minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	// Delete only up to the last archived event, not the full cutoff: newer
	// events past the batch limit stay for the next cycle.
	deleteCutoff := events[len(events)-1].CreatedAt.Add(time.Nanosecond)
	deleted, err := a.journal.DeleteBefore(ctx, deleteCutoff)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive delete: %w", err)
	}

	return deleted, nil
}

// archivePath builds the S3 key for an archive file, partitioned by day with
// a nanosecond suffix so successive cycles within a day do not collide.
//
//	archive/adjustments/2026-08-23/1692800000000000000.jsonl
func archivePath(last time.Time) string {
	return fmt.Sprintf("archive/adjustments/%s/%d.jsonl",
		last.Format("2006-01-02"), last.UnixNano())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
