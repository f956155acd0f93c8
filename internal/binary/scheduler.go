package binary

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// expiryItem is one pending settlement keyed by order id.
type expiryItem struct {
	orderID string
	at      time.Time
	seq     uint64 // tie-breaker for equal deadlines
	index   int
}

type expiryHeap []*expiryItem

func (h expiryHeap) Len() int { return len(h) }
func (h expiryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *expiryHeap) Push(x any) {
	it := x.(*expiryItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Scheduler drives binary-option settlement from a min-heap keyed by expiry.
// One goroutine sleeps until the earliest deadline; many orders expiring at
// once are settled back to back. A settlement error is retried once; a second
// failure hands the order to the fallback.
type Scheduler struct {
	mu        sync.Mutex
	h         expiryHeap
	items     map[string]*expiryItem
	seq       uint64
	wake      chan struct{}
	settle    func(orderID string) error
	fallback  func(orderID string)
	startOnce sync.Once
}

// NewScheduler creates a settlement scheduler. settle is invoked for each due
// order; fallback is invoked after settle has failed twice.
func NewScheduler(settle func(orderID string) error, fallback func(orderID string)) *Scheduler {
	return &Scheduler{
		items:    make(map[string]*expiryItem),
		wake:     make(chan struct{}, 1),
		settle:   settle,
		fallback: fallback,
	}
}

// Schedule registers a settlement for orderID at the given time.
// Re-scheduling an already pending order moves its deadline.
func (s *Scheduler) Schedule(orderID string, at time.Time) {
	s.mu.Lock()
	if it, ok := s.items[orderID]; ok {
		it.at = at
		heap.Fix(&s.h, it.index)
	} else {
		s.seq++
		it := &expiryItem{orderID: orderID, at: at, seq: s.seq}
		heap.Push(&s.h, it)
		s.items[orderID] = it
	}
	s.mu.Unlock()
	s.kick()
}

// Cancel removes a pending settlement. Returns false if none was pending.
func (s *Scheduler) Cancel(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[orderID]
	if !ok {
		return false
	}
	heap.Remove(&s.h, it.index)
	delete(s.items, orderID)
	return true
}

// Pending returns the number of scheduled settlements.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start runs the settlement loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

func (s *Scheduler) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.h) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.h[0].at)
		}
		s.mu.Unlock()

		if wait <= 0 {
			s.settleDue()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
			s.settleDue()
		}
	}
}

// settleDue pops and settles every item whose deadline has passed.
func (s *Scheduler) settleDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if len(s.h) == 0 || s.h[0].at.After(now) {
			s.mu.Unlock()
			return
		}
		it := heap.Pop(&s.h).(*expiryItem)
		delete(s.items, it.orderID)
		s.mu.Unlock()

		s.runSettle(it.orderID)
	}
}

// runSettle invokes the settlement callback with a retry and a panic guard:
// one order's failure must never take down the scheduler loop.
func (s *Scheduler) runSettle(orderID string) {
	err := s.safeSettle(orderID)
	if err == nil {
		return
	}
	log.Printf("binary: settlement of %s failed, retrying once: %v", orderID, err)
	if err = s.safeSettle(orderID); err == nil {
		return
	}
	log.Printf("binary: settlement of %s failed twice, voiding: %v", orderID, err)
	if s.fallback != nil {
		s.fallback(orderID)
	}
}

func (s *Scheduler) safeSettle(orderID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("settlement panic: %v", r)
		}
	}()
	return s.settle(orderID)
}
