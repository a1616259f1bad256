package scheduler

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/subtrackd/subtrackd/internal/pkg/cache"
	"github.com/subtrackd/subtrackd/internal/pkg/database"
	"github.com/subtrackd/subtrackd/internal/pkg/env"
	"github.com/subtrackd/subtrackd/internal/pkg/mail"
	"github.com/subtrackd/subtrackd/internal/pkg/metrics/counter"
)

// Manager owns the reminder engine and its background tasks: the
// reconciliation sweep (re-arms workflows for active subscriptions without a
// live run or schedule entry) and the counter flush to the database.
type Manager struct {
	engine          *Engine
	reconcileTicker *time.Ticker
	flushTicker     *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		store := NewRedisRunStore(cache.GetClient())
		source := NewDBSource(database.GetDB())
		notifier := mail.NewReminderMailer()

		globalManager = &Manager{
			engine: NewEngine(store, source, notifier, SystemClock(), offsetsFromEnv(), workerCountFromEnv()),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetEngine returns the managed engine
func (m *Manager) GetEngine() *Engine {
	return m.engine
}

// Start starts the engine and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler Manager] Starting reminder engine and background tasks")

	m.engine.Start()

	reconcileInterval := reconcileIntervalFromEnv()
	m.reconcileTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.reconcileWorker(reconcileInterval)

	// Flush reminder counters (Redis -> DB) every 5 seconds
	m.flushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.flushWorker()

	log.Info("[Scheduler Manager] Started successfully")
}

// Stop stops the engine and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler Manager] Stopping reminder engine and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.engine.Stop()

	log.Info("[Scheduler Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// reconcileWorker periodically re-triggers workflows for subscriptions that
// lost theirs (missed initial trigger, crash between claim and suspend).
func (m *Manager) reconcileWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[Scheduler Manager] Started reconciliation worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Reconciliation worker stopping")
			return
		case <-m.reconcileTicker.C:
			if err := m.ReconcileOnce(); err != nil {
				log.Errorf("[Scheduler Manager] Reconciliation sweep error: %v", err)
			}
		}
	}
}

// flushWorker periodically flushes reminder counters from Redis to DB
func (m *Manager) flushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler Manager] Counter flush worker stopping")
			return
		case <-m.flushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[Scheduler Manager] Counter flush error: %v", err)
			}
		}
	}
}

// ReconcileOnce scans active subscriptions with an upcoming renewal and
// makes sure each one has a run and a schedule entry. Exposed for a manual
// admin trigger.
func (m *Manager) ReconcileOnce() error {
	return m.engine.Reconcile()
}

func workerCountFromEnv() int {
	if v, err := strconv.Atoi(env.GetEnv("REMINDER_WORKER_COUNT", "3")); err == nil && v > 0 {
		return v
	}
	return 3
}

func reconcileIntervalFromEnv() time.Duration {
	if v, err := strconv.Atoi(env.GetEnv("REMINDER_RECONCILE_INTERVAL", "15")); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return 15 * time.Minute
}

// offsetsFromEnv parses REMINDER_OFFSETS ("7,5,2,1") and normalizes it to a
// strictly descending list of positive day-counts.
func offsetsFromEnv() []int {
	raw := env.GetEnv("REMINDER_OFFSETS", "")
	if raw == "" {
		return DefaultOffsets
	}
	var offsets []int
	seen := make(map[int]struct{})
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v <= 0 {
			log.Warnf("[Scheduler Manager] Ignoring invalid reminder offset %q", part)
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		offsets = append(offsets, v)
	}
	if len(offsets) == 0 {
		return DefaultOffsets
	}
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	return offsets
}
