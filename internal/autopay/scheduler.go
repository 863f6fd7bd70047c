// Package autopay keeps in-memory deferred checks for armed orders so that
// auto-payment fires close to its deadline instead of on the next sweep. The
// timers are an optimization only; the periodic sweep stays authoritative.
package autopay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/metrics"
	"github.com/google/uuid"
)

// FireFunc settles one order when its deadline passes.
type FireFunc func(ctx context.Context, orderID uuid.UUID) error

type armedLister interface {
	ListArmed(ctx context.Context) ([]models.Order, error)
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

type entry struct {
	timer stopper
	gen   uint64
}

// Scheduler owns one timer per armed order.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]entry
	gen     uint64
	stopped bool

	fire    FireFunc
	base    context.Context
	cancel  context.CancelFunc
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	after   afterFunc
	now     func() time.Time
	wg      sync.WaitGroup
}

type SchedulerParams struct {
	Fire    FireFunc
	Logger  *logger.Logger
	Metrics *metrics.SettlementMetrics
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Fire == nil {
		return nil, fmt.Errorf("fire callback required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		timers:  make(map[uuid.UUID]entry),
		fire:    params.Fire,
		base:    base,
		cancel:  cancel,
		logg:    params.Logger,
		metrics: params.Metrics,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now: time.Now,
	}, nil
}

// Schedule arms or replaces the timer for orderID.
func (s *Scheduler) Schedule(orderID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.timers[orderID]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	delay := deadline.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[orderID] = entry{
		timer: s.after(delay, func() { s.run(orderID, gen) }),
		gen:   gen,
	}
	s.metrics.SetArmedTimers(len(s.timers))
}

// Cancel drops the timer for orderID if one exists.
func (s *Scheduler) Cancel(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[orderID]; ok {
		e.timer.Stop()
		delete(s.timers, orderID)
		s.metrics.SetArmedTimers(len(s.timers))
	}
}

// Len reports how many timers are pending.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Restore schedules a timer for every order that is armed in storage. It is
// called once on process start; orders already past due fire immediately.
func (s *Scheduler) Restore(ctx context.Context, lister armedLister) (int, error) {
	armed, err := lister.ListArmed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list armed orders: %w", err)
	}
	restored := 0
	for _, order := range armed {
		if order.AutoPaymentDeadline == nil {
			continue
		}
		s.Schedule(order.ID, *order.AutoPaymentDeadline)
		restored++
	}
	s.logg.Info(s.logg.WithField(ctx, "restored", restored), "auto-payment timers restored")
	return restored, nil
}

// Stop cancels pending timers and waits for callbacks already running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SetArmedTimers(0)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(orderID uuid.UUID, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[orderID]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, orderID)
	s.metrics.SetArmedTimers(len(s.timers))
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := s.logg.WithOrderID(s.base, orderID.String())
	if err := s.fire(ctx, orderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "deferred auto-payment failed; sweep will retry")
	}
}
