// Package versionhistory snapshots production state on every version bump
// and purges snapshots past the configured retention window. The workflow
// engine has no direct dependency on this package; internal/app wires a
// Recorder in wherever production.Store.Update succeeds, the same seam the
// audit writer hangs off of.
package versionhistory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/dramaforge/internal/db"
	"github.com/wisbric/dramaforge/pkg/production"
)

// Recorder writes an immutable snapshot row each time a production's
// version advances.
type Recorder struct {
	dbtx   db.DBTX
	logger *slog.Logger
}

func NewRecorder(dbtx db.DBTX, logger *slog.Logger) *Recorder {
	return &Recorder{dbtx: dbtx, logger: logger}
}

// Snapshot persists the given production's current state under its current
// version number. It is append-only: callers invoke it after a successful
// production.Store.Update, never before.
func (r *Recorder) Snapshot(ctx context.Context, p production.Production) error {
	outputs, err := json.Marshal(p.StageOutputs)
	if err != nil {
		return fmt.Errorf("versionhistory: marshaling stage outputs: %w", err)
	}

	_, err = r.dbtx.Exec(ctx, `
		INSERT INTO production_versions (production_id, version, status, current_stage, stage_outputs)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Version, string(p.Status), string(p.CurrentStage), outputs)
	if err != nil {
		return fmt.Errorf("versionhistory: inserting snapshot: %w", err)
	}
	return nil
}

// Purger deletes snapshots older than a retention window.
type Purger struct {
	dbtx      db.DBTX
	retention time.Duration
	logger    *slog.Logger
}

func NewPurger(dbtx db.DBTX, retention time.Duration, logger *slog.Logger) *Purger {
	return &Purger{dbtx: dbtx, retention: retention, logger: logger}
}

// PurgeOnce deletes every snapshot whose snapshot_at falls outside the
// retention window and returns how many rows were removed.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.retention)
	tag, err := p.dbtx.Exec(ctx, `DELETE FROM production_versions WHERE snapshot_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("versionhistory: purging: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Run purges on the given interval until ctx is cancelled: run once
// immediately, then tick.
func (p *Purger) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("version history purge loop started", "interval", interval, "retention", p.retention)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if n, err := p.PurgeOnce(ctx); err != nil {
		p.logger.Error("initial version history purge", "error", err)
	} else if n > 0 {
		p.logger.Info("version history purge completed", "rows_deleted", n)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("version history purge loop stopped")
			return
		case <-ticker.C:
			n, err := p.PurgeOnce(ctx)
			if err != nil {
				p.logger.Error("version history purge", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Info("version history purge completed", "rows_deleted", n)
			}
		}
	}
}
