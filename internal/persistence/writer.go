package persistence

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/pkg/db"
)

// WriteOp is one buffered database write.
type WriteOp struct {
	Query string
	Args  []any
}

// Writer batches snapshot writes behind a single flushing goroutine. Callers
// only append to an in-memory buffer; the ledger and feed never block on
// disk.
type Writer struct {
	db          *db.Database
	buffer      []WriteOp
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup

	totalWrites  uint64
	totalBatches uint64
	totalErrors  uint64
}

// NewWriter creates a snapshot writer.
// maxSize: max buffered ops before auto-flush; interval: time-based flush.
func NewWriter(database *db.Database, maxSize int, interval time.Duration) *Writer {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	w := &Writer{
		db:          database,
		buffer:      make([]WriteOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.backgroundFlush()

	return w
}

// SaveInstrument queues an instrument snapshot upsert.
func (w *Writer) SaveInstrument(snap market.InstrumentSnapshot) {
	op, err := instrumentUpsert(snap)
	if err != nil {
		atomic.AddUint64(&w.totalErrors, 1)
		log.Printf("persistence: %v", err)
		return
	}
	w.write(op)
}

// SaveAccount queues an account snapshot upsert. Safe to call from a ledger
// OnChange callback: it never touches disk on the caller's goroutine.
func (w *Writer) SaveAccount(a ledger.Account) {
	w.write(accountUpsert(a))
}

func (w *Writer) write(op WriteOp) {
	w.mu.Lock()
	w.buffer = append(w.buffer, op)
	shouldFlush := len(w.buffer) >= w.maxSize
	w.mu.Unlock()

	if shouldFlush {
		if err := w.Flush(); err != nil {
			log.Printf("persistence: flush error: %v", err)
		}
	}
}

// Flush writes all buffered operations in one transaction.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	ops := w.buffer
	w.buffer = make([]WriteOp, 0, w.maxSize)
	w.mu.Unlock()

	return w.executeBatch(ops)
}

func (w *Writer) executeBatch(ops []WriteOp) error {
	atomic.AddUint64(&w.totalWrites, uint64(len(ops)))
	atomic.AddUint64(&w.totalBatches, 1)

	tx, err := w.db.DB.Begin()
	if err != nil {
		atomic.AddUint64(&w.totalErrors, 1)
		return err
	}

	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			tx.Rollback()
			atomic.AddUint64(&w.totalErrors, 1)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&w.totalErrors, 1)
		return err
	}
	return nil
}

func (w *Writer) backgroundFlush() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Printf("persistence: background flush error: %v", err)
			}
		case <-w.done:
			// Final flush before shutdown
			if err := w.Flush(); err != nil {
				log.Printf("persistence: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of buffered operations.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Stats reports writer counters.
func (w *Writer) Stats() (writes, batches, errors uint64) {
	return atomic.LoadUint64(&w.totalWrites),
		atomic.LoadUint64(&w.totalBatches),
		atomic.LoadUint64(&w.totalErrors)
}

// Close flushes remaining work and stops the background goroutine.
func (w *Writer) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}
