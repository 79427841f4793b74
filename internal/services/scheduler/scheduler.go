package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
)

type SyncService interface {
	SyncInTransit(ctx context.Context) (syncer.SyncReport, error)
	RefreshVesselPositions(ctx context.Context) (int, error)
}

// Scheduler гоняет два независимых цикла: полную сверку отправок и
// обновление позиций судов. Оба могут быть дернуты вручную через Trigger*.
type Scheduler struct {
	svc SyncService

	syncInterval      time.Duration
	positionsInterval time.Duration

	triggerSyncCh      chan struct{}
	triggerPositionsCh chan struct{}

	startedAtUnixNano     int64
	lastSyncUnixNano      atomic.Int64
	lastPositionsUnixNano atomic.Int64
	lastTriggerUnixNano   atomic.Int64
	totalRuns             atomic.Int64
	totalProcessed        atomic.Int64
	totalErrors           atomic.Int64
	totalAlerts           atomic.Int64
	syncRunning           atomic.Bool
	lastErrorMu           sync.Mutex
	lastError             string
}

func New(svc SyncService) *Scheduler {
	return &Scheduler{
		svc:                svc,
		syncInterval:       6 * time.Hour,
		positionsInterval:  30 * time.Minute,
		triggerSyncCh:      make(chan struct{}, 1),
		triggerPositionsCh: make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Scheduler) WithSettings(syncInterval, positionsInterval time.Duration) *Scheduler {
	if syncInterval > 0 {
		s.syncInterval = syncInterval
	}
	if positionsInterval > 0 {
		s.positionsInterval = positionsInterval
	}
	return s
}

// TriggerSync forces an immediate sync cycle (best-effort, non-blocking).
func (s *Scheduler) TriggerSync() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerSyncCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) TriggerPositions() {
	select {
	case s.triggerPositionsCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastSyncAt      *time.Time `json:"lastSyncAt,omitempty"`
	LastPositionsAt *time.Time `json:"lastPositionsAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalRuns       int64      `json:"totalRuns"`
	TotalProcessed  int64      `json:"totalProcessed"`
	TotalErrors     int64      `json:"totalErrors"`
	TotalAlerts     int64      `json:"totalAlerts"`
	SyncRunning     bool       `json:"syncRunning"`
	LastError       string     `json:"lastError,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalRuns:      s.totalRuns.Load(),
		TotalProcessed: s.totalProcessed.Load(),
		TotalErrors:    s.totalErrors.Load(),
		TotalAlerts:    s.totalAlerts.Load(),
		SyncRunning:    s.syncRunning.Load(),
	}
	if n := s.lastSyncUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastSyncAt = &t
	}
	if n := s.lastPositionsUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastPositionsAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	syncT := time.NewTicker(s.syncInterval)
	defer syncT.Stop()
	posT := time.NewTicker(s.positionsInterval)
	defer posT.Stop()

	// Первый прогон сразу при старте, чтобы после деплоя не ждать 6 часов.
	s.runSyncOnce(ctx)
	s.runPositionsOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-syncT.C:
			s.runSyncOnce(ctx)
		case <-s.triggerSyncCh:
			s.runSyncOnce(ctx)
		case <-posT.C:
			s.runPositionsOnce(ctx)
		case <-s.triggerPositionsCh:
			s.runPositionsOnce(ctx)
		}
	}
}

func (s *Scheduler) runSyncOnce(ctx context.Context) {
	if !s.syncRunning.CompareAndSwap(false, true) {
		// Прошлая сверка ещё идёт, дубль не запускаем.
		return
	}
	defer s.syncRunning.Store(false)

	s.lastSyncUnixNano.Store(time.Now().UTC().UnixNano())
	s.totalRuns.Add(1)

	report, err := s.svc.SyncInTransit(ctx)
	s.totalProcessed.Add(int64(report.Processed))
	s.totalErrors.Add(int64(report.Errors))
	s.totalAlerts.Add(int64(report.AlertsRaised))
	if err != nil {
		s.setLastError(err.Error())
		slog.Error("shipment sync cycle", "run_id", report.RunID, "error", err.Error())
		return
	}
	slog.Info("shipment sync cycle done",
		"run_id", report.RunID,
		"total", report.Total,
		"processed", report.Processed,
		"errors", report.Errors,
		"alerts", report.AlertsRaised,
	)
}

func (s *Scheduler) runPositionsOnce(ctx context.Context) {
	s.lastPositionsUnixNano.Store(time.Now().UTC().UnixNano())

	updated, err := s.svc.RefreshVesselPositions(ctx)
	if err != nil {
		s.setLastError(err.Error())
		slog.Error("vessel positions cycle", "error", err.Error())
		return
	}
	slog.Info("vessel positions cycle done", "updated", updated)
}

func (s *Scheduler) setLastError(msg string) {
	s.lastErrorMu.Lock()
	s.lastError = msg
	s.lastErrorMu.Unlock()
}
