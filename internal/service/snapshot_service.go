package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
	"github.com/alanyoungcy/ctmarket/internal/notify"
)

// SnapshotService exports a JSON snapshot of engine state to object storage,
// on demand or on a fixed interval. The snapshot covers the condition table,
// the oracle's question set and the market set; account balances stay in the
// engine.
type SnapshotService struct {
	ledger   *engine.Ledger
	oracle   *engine.Oracle
	factory  *engine.MarketFactory
	blobs    domain.BlobWriter
	notifier *notify.Notifier
	prefix   string
	logger   *slog.Logger

	now func() time.Time
}

// Snapshot is the exported document shape.
type Snapshot struct {
	TakenAt    time.Time          `json:"taken_at"`
	Conditions []domain.Condition `json:"conditions"`
	Questions  []domain.Question  `json:"questions"`
	Markets    []domain.Market    `json:"markets"`
}

// NewSnapshotService creates a SnapshotService writing under prefix.
func NewSnapshotService(
	ledger *engine.Ledger,
	oracle *engine.Oracle,
	factory *engine.MarketFactory,
	blobs domain.BlobWriter,
	notifier *notify.Notifier,
	prefix string,
	logger *slog.Logger,
) *SnapshotService {
	return &SnapshotService{
		ledger:   ledger,
		oracle:   oracle,
		factory:  factory,
		blobs:    blobs,
		notifier: notifier,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "snapshot_service")),
		now:      time.Now,
	}
}

// Export takes a snapshot and uploads it. It returns the object key.
func (s *SnapshotService) Export(ctx context.Context) (string, error) {
	snap := Snapshot{
		TakenAt:    s.now().UTC(),
		Conditions: s.ledger.Conditions(),
		Questions:  s.oracle.Questions(),
		Markets:    s.factory.Markets(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot_service: marshal: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", s.prefix, snap.TakenAt.Format("2006-01-02T15-04-05Z"))
	if err := s.blobs.Put(ctx, key, "application/json", data); err != nil {
		return "", fmt.Errorf("snapshot_service: upload: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot exported",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Int("conditions", len(snap.Conditions)),
		slog.Int("markets", len(snap.Markets)),
	)
	return key, nil
}

// Run exports a snapshot every interval until ctx is cancelled. Failures are
// logged and notified but do not stop the loop.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "snapshot loop started",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "snapshot loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Export(ctx); err != nil {
				s.logger.ErrorContext(ctx, "snapshot export failed",
					slog.String("error", err.Error()),
				)
				if s.notifier != nil {
					_ = s.notifier.Notify(ctx, notify.EventSnapshotFailed,
						"Snapshot failed", err.Error())
				}
			}
		}
	}
}
