package dedup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweepable is implemented by stores that support periodic eviction.
type Sweepable interface {
	Sweep() int
}

// Sweeper runs TTL sweeps over registered stores on a fixed interval,
// so expired entries cost one background job instead of one timer each.
type Sweeper struct {
	cron     *cron.Cron
	interval time.Duration
	logger   *slog.Logger
	targets  map[string]Sweepable
}

// NewSweeper creates a Sweeper with the given sweep interval.
func NewSweeper(log *slog.Logger, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 45 * time.Second
	}
	return &Sweeper{
		cron:     cron.New(),
		interval: interval,
		logger:   log.With(slog.String("component", "sweeper")),
		targets:  make(map[string]Sweepable),
	}
}

// Register adds a named store to the sweep cycle. Must be called before Start.
func (s *Sweeper) Register(name string, target Sweepable) {
	if target == nil {
		return
	}
	s.targets[name] = target
}

// Start schedules the sweep job and starts the cron runner.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweepAll); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweepAll() {
	for name, target := range s.targets {
		if removed := target.Sweep(); removed > 0 {
			s.logger.Debug("swept expired entries",
				slog.String("store", name),
				slog.Int("removed", removed))
		}
	}
}
