// Package sync implements the control service that drives periodic mirroring
// ticks and the notification queue refresh.
package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/notify/engine"
	"github.com/shiftline/shiftline-sync-server/internal/status"
	"github.com/shiftline/shiftline-sync-server/internal/sync/mirror"
	"github.com/shiftline/shiftline-sync-server/internal/telemetry"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

// SinkFactory builds a Sink for a destination. Injected so tests can supply
// fakes without touching a filesystem or an S3 endpoint.
type SinkFactory func(sourcePath string, dest *config.DestinationConfig) (mirror.Sink, error)

// Controller is the control surface exposed to the API layer.
//
//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks github.com/shiftline/shiftline-sync-server/internal/sync Controller
type Controller interface {
	// Start transitions Stopped -> Running and begins the periodic tick loop.
	// No-op when already Running. Fails with a configuration error when no
	// usable destination is configured.
	Start(ctx context.Context) error

	// Stop cancels future ticks and transitions to Stopped. It returns after
	// the loop goroutine exits; an in-flight tick runs to completion first.
	// No-op when already Stopped.
	Stop() error

	// Pause transitions Running -> Paused. Ticks keep firing but only update
	// the heartbeat.
	Pause() error

	// Resume transitions Paused -> Running.
	Resume() error

	// ForceSyncNow executes one tick synchronously. It contends on the same
	// tick lock as the timer, so it blocks behind an in-flight tick rather
	// than double-ticking. The periodic schedule is unaffected.
	ForceSyncNow(ctx context.Context) error

	// SetDestination validates the destination and swaps it in for subsequent
	// ticks.
	SetDestination(ctx context.Context, dest *config.DestinationConfig) error

	// Status returns a point-in-time snapshot. It never blocks behind a tick.
	Status() status.SyncState
}

// Service owns the Stopped/Running/Paused state machine and the tick loop.
type Service struct {
	sourcePath  string
	recordsPath string
	interval    time.Duration
	refresher   engine.Refresher
	sinkFactory SinkFactory
	now         func() time.Time

	syncMetrics  *telemetry.SyncMetrics
	queueMetrics *telemetry.QueueMetrics

	// mu guards phase transitions, sink swaps and loop lifecycle. Held only
	// for short critical sections, never across I/O.
	mu     sync.Mutex
	state  *status.SyncState
	sink   mirror.Sink
	dest   *config.DestinationConfig
	cancel context.CancelFunc
	done   chan struct{}

	// tickMu serializes tick execution. Timer fires use TryLock and drop the
	// tick when one is already running; ForceSyncNow blocks on it.
	tickMu sync.Mutex

	// snapshot is the published state read by Status.
	snapshot atomic.Pointer[status.SyncState]
}

var _ Controller = (*Service)(nil)

// Option is a function that configures the service
type Option func(*Service)

// WithSinkFactory overrides how sinks are built from destination config.
func WithSinkFactory(factory SinkFactory) Option {
	return func(s *Service) {
		s.sinkFactory = factory
	}
}

// WithSyncMetrics sets the sync metrics for the service
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *Service) {
		s.syncMetrics = metrics
	}
}

// WithQueueMetrics sets the queue metrics for the service
func WithQueueMetrics(metrics *telemetry.QueueMetrics) Option {
	return func(s *Service) {
		s.queueMetrics = metrics
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a stopped service with injected dependencies.
func NewService(cfg *config.Config, refresher engine.Refresher, opts ...Option) *Service {
	s := &Service{
		sourcePath:  cfg.Source.Path,
		recordsPath: cfg.GetRecordsPath(),
		interval:    cfg.Sync.GetInterval(),
		refresher:   refresher,
		sinkFactory: mirror.NewSink,
		now:         time.Now,
		dest:        cfg.Destination,
		state: &status.SyncState{
			Phase:  status.PhaseStopped,
			Source: cfg.Source.Path,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.snapshot.Store(s.state.Clone())
	return s
}

// Start transitions Stopped -> Running and launches the tick loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Phase {
	case status.PhaseRunning:
		return nil
	case status.PhasePaused:
		return NewInvalidTransitionError("service is paused; resume it instead of starting")
	case status.PhaseStopped:
	}

	if s.sink == nil {
		sink, err := s.sinkFactory(s.sourcePath, s.dest)
		if err != nil {
			return NewConfigurationError("no usable destination configured", err)
		}
		s.sink = sink
	}
	if err := s.sink.Validate(ctx); err != nil {
		return NewConfigurationError("destination validation failed", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.state.Phase = status.PhaseRunning
	s.state.Destination = s.sink.Describe()
	s.scheduleNextLocked()
	s.publishLocked()

	logger.Infof("Sync service started (source=%s destination=%s interval=%s)",
		s.sourcePath, s.state.Destination, s.interval)

	go s.run(loopCtx, done)
	return nil
}

// Stop cancels the tick loop and transitions to Stopped from any phase.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state.Phase == status.PhaseStopped {
		s.mu.Unlock()
		return nil
	}

	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.state.Phase = status.PhaseStopped
	s.state.NextSyncAt = nil
	s.publishLocked()
	s.mu.Unlock()

	logger.Infof("Stopping sync service")
	cancel()
	<-done
	return nil
}

// Pause transitions Running -> Paused.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != status.PhaseRunning {
		return NewInvalidTransitionError("cannot pause while %s", s.state.Phase)
	}
	s.state.Phase = status.PhasePaused
	s.publishLocked()
	logger.Infof("Sync service paused")
	return nil
}

// Resume transitions Paused -> Running.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != status.PhasePaused {
		return NewInvalidTransitionError("cannot resume while %s", s.state.Phase)
	}
	s.state.Phase = status.PhaseRunning
	s.publishLocked()
	logger.Infof("Sync service resumed")
	return nil
}

// ForceSyncNow runs one tick synchronously, blocking behind any tick already
// in progress.
func (s *Service) ForceSyncNow(ctx context.Context) error {
	s.mu.Lock()
	phase := s.state.Phase
	s.mu.Unlock()

	if phase == status.PhaseStopped {
		return NewNotConfiguredError("sync service is not running")
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.syncMetrics.RecordForcedSync(ctx)
	s.tick(ctx)
	return nil
}

// SetDestination validates the new destination and swaps it in. The swap is
// atomic under the service mutex and takes effect on the next tick.
func (s *Service) SetDestination(ctx context.Context, dest *config.DestinationConfig) error {
	sink, err := s.sinkFactory(s.sourcePath, dest)
	if err != nil {
		return NewConfigurationError("destination is not usable", err)
	}
	if err := sink.Validate(ctx); err != nil {
		return NewConfigurationError("destination validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dest = dest
	s.sink = sink
	s.state.Destination = sink.Describe()
	s.publishLocked()
	logger.Infof("Destination reconfigured to %s", s.state.Destination)
	return nil
}

// Status returns the last published snapshot.
func (s *Service) Status() status.SyncState {
	return *s.snapshot.Load().Clone()
}

// run drives scheduled ticks until the context is cancelled.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First tick runs immediately on start.
	s.scheduledTick(ctx)

	for {
		select {
		case <-ticker.C:
			s.scheduledTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// scheduledTick runs one timer-driven tick. A fire that finds a tick already
// executing is dropped, not queued; the next scheduled fire is the retry.
func (s *Service) scheduledTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		logger.Warnf("Previous tick still running, skipping this fire")
		return
	}
	s.tick(ctx)
	s.tickMu.Unlock()

	s.mu.Lock()
	if s.state.Phase != status.PhaseStopped {
		s.scheduleNextLocked()
		s.publishLocked()
	}
	s.mu.Unlock()
}

// tick performs one sync pass. Caller must hold tickMu.
func (s *Service) tick(ctx context.Context) {
	started := s.now()

	s.mu.Lock()
	phase := s.state.Phase
	sink := s.sink
	s.mu.Unlock()

	if phase == status.PhaseStopped {
		return
	}
	if phase == status.PhasePaused {
		s.mu.Lock()
		beat := s.now()
		s.state.LastSyncAt = &beat
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	mirrored := 0
	tickErrs := 0

	recordSets, err := s.listRecordSets()
	if err != nil {
		tickErrs++
		s.recordError(fmt.Sprintf("failed to list record sets: %v", err))
	}

	// One unreachable record set does not abort the pass.
	for _, name := range recordSets {
		if _, err := sink.Mirror(ctx, name); err != nil {
			tickErrs++
			s.recordError(fmt.Sprintf("failed to mirror %s: %v", name, err))
			continue
		}
		mirrored++
	}

	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		tickErrs++
		s.recordError(fmt.Sprintf("queue refresh failed: %v", err))
	}
	if result != nil {
		s.queueMetrics.RecordRefresh(ctx, result.Admitted, result.Skipped, result.Reclaimed, result.Pending)
		logger.Debugf("Queue refresh complete (admitted=%d skipped=%d reclaimed=%d pending=%d)",
			result.Admitted, result.Skipped, result.Reclaimed, result.Pending)
	}

	s.mu.Lock()
	finished := s.now()
	s.state.LastSyncAt = &finished
	s.state.FilesSynced += mirrored
	s.publishLocked()
	s.mu.Unlock()

	s.syncMetrics.RecordMirrored(ctx, mirrored)
	s.syncMetrics.RecordTick(ctx, s.now().Sub(started), tickErrs)

	logger.Infof("Sync tick complete (mirrored=%d errors=%d duration=%s)",
		mirrored, tickErrs, s.now().Sub(started).Round(time.Millisecond))
}

// listRecordSets returns the record set names in the source folder, skipping
// hidden entries and the notification records folder.
func (s *Service) listRecordSets() ([]string, error) {
	entries, err := os.ReadDir(s.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source folder %s is not readable: %w", s.sourcePath, err)
	}

	skip := ""
	if filepath.Dir(s.recordsPath) == filepath.Clean(s.sourcePath) {
		skip = filepath.Base(s.recordsPath)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == skip || name[0] == '.' {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// recordError appends one error to the bounded recent-error list.
func (s *Service) recordError(msg string) {
	logger.Errorf("%s", msg)
	s.mu.Lock()
	s.state.PushError(msg)
	s.publishLocked()
	s.mu.Unlock()
}

// scheduleNextLocked updates NextSyncAt. Caller must hold mu.
func (s *Service) scheduleNextLocked() {
	next := s.now().Add(s.interval)
	s.state.NextSyncAt = &next
}

// publishLocked stores a fresh snapshot for lock-free Status reads. Caller
// must hold mu.
func (s *Service) publishLocked() {
	s.snapshot.Store(s.state.Clone())
}
