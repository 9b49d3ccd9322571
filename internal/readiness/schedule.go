package readiness

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// cronParser accepts standard 5-field expressions, an optional seconds field and
// descriptors such as @daily.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule calls Gate.Refresh on a cron expression.
type Schedule struct {
	gate *Gate
	cron *cron.Cron
	spec string
}

// NewSchedule validates spec and prepares a schedule evaluated in loc.
func NewSchedule(gate *Gate, spec string, loc *time.Location) (*Schedule, error) {
	if _, err := cronParser.Parse(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &Schedule{
		gate: gate,
		cron: cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		spec: spec,
	}, nil
}

// Start registers the refresh job and starts the cron ticker.
func (s *Schedule) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		log.WithField("schedule", s.spec).Info("scheduled menu refresh")
		// Refresh logs its own failures.
		_ = s.gate.Refresh(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Next is the next time the refresh fires; zero before Start.
func (s *Schedule) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the ticker and waits for a running refresh to return.
func (s *Schedule) Stop() {
	<-s.cron.Stop().Done()
}
