package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

// BookReader is the read side of the order service.
type BookReader interface {
	Snapshot() (models.Snapshot, uint64)
}

// snapshotStore is the part of RedisCache the writer needs.
type snapshotStore interface {
	SetSnapshot(ctx context.Context, snap CachedSnapshot) error
}

// SnapshotWriter periodically mirrors the full book into Redis. A tick is
// skipped when no order was accepted or cancelled since the last write.
type SnapshotWriter struct {
	store    snapshotStore
	book     BookReader
	interval time.Duration
	logger   *zap.Logger

	lastSeq uint64
	written bool
}

func NewSnapshotWriter(store snapshotStore, book BookReader, interval time.Duration, logger *zap.Logger) *SnapshotWriter {
	return &SnapshotWriter{
		store:    store,
		book:     book,
		interval: interval,
		logger:   logger.Named("snapshot"),
	}
}

// Run writes snapshots until ctx is cancelled.
func (w *SnapshotWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("snapshot writer started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot writer stopped")
			return
		case <-ticker.C:
			if _, err := w.WriteOnce(ctx); err != nil {
				w.logger.Warn("failed to write snapshot", zap.Error(err))
			}
		}
	}
}

// WriteOnce stores the current book if it changed. It reports whether a
// write happened.
func (w *SnapshotWriter) WriteOnce(ctx context.Context) (bool, error) {
	book, seq := w.book.Snapshot()
	if w.written && seq == w.lastSeq {
		return false, nil
	}

	err := w.store.SetSnapshot(ctx, CachedSnapshot{
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
		Book:      book,
	})
	if err != nil {
		return false, err
	}

	w.lastSeq = seq
	w.written = true
	return true, nil
}
