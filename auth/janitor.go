package auth

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mizuhq/konichiwa/stores"
)

// DefaultJanitorSchedule prunes expired sessions hourly.
const DefaultJanitorSchedule = "0 * * * *"

// Janitor periodically deletes expired auth sessions from the store.
type Janitor struct {
	store    stores.RecordStore
	cron     *cron.Cron
	schedule string
	logger   *log.Logger
}

// NewJanitor creates a janitor for store. Schedule is a standard cron
// expression; empty means DefaultJanitorSchedule.
func NewJanitor(store stores.RecordStore, schedule string, logger *log.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{
		store:    store,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the prune job and starts the scheduler.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, j.prune)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop stops the scheduler, waiting for a running prune to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) prune() {
	n, err := j.store.DeleteExpiredAuthSessions(time.Now())
	if err != nil {
		j.logger.Printf("Error pruning expired sessions: %v", err)
		return
	}
	if n > 0 {
		j.logger.Printf("Pruned %d expired session(s)", n)
	}
}
