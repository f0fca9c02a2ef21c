package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Janitor prunes audit rows past the retention horizon on a daily cron
// schedule. Audit data is billing metadata, not compliance evidence, so a
// bounded retention window keeps the database from growing without limit.
type Janitor struct {
	store         *Store
	retentionDays int
	cron          *cron.Cron
}

// NewJanitor creates a janitor pruning rows older than retentionDays.
func NewJanitor(store *Store, retentionDays int) *Janitor {
	return &Janitor{
		store:         store,
		retentionDays: retentionDays,
		cron:          cron.New(),
	}
}

// Start schedules the daily prune and runs the cron loop in the
// background. Returns an error only when the schedule expression is
// invalid, which would be a programming mistake.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc("@daily", j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for an in-flight prune to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	pruned, err := j.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("audit retention prune failed")
		return
	}
	if pruned > 0 {
		log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("audit retention prune")
	}
}
