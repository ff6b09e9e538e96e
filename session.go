package pointtrack

import (
	"image"
	"sync"
	"time"

	"github.com/pointtrack/go-pointtrack/detect"
)

// sessionFrame is one pending unit of work for the session worker
type sessionFrame struct {
	img   *image.RGBA
	ts    time.Time
	dets  []detect.Detection
	epoch uint64
}

// Session feeds frames to an engine through a single-slot mailbox.  A
// submit while the worker is busy overwrites the pending slot, so the
// worker always processes the newest frame and never builds a backlog
type Session struct {
	engine *Engine

	mu      sync.Mutex
	cond    *sync.Cond
	pending *sessionFrame
	closed  bool
	epoch   uint64

	consecutiveDrops uint64
	totalDrops       uint64

	results chan *FrameResult
	done    chan struct{}
}

// NewSession starts the worker goroutine.  resultBuffer sizes the
// results channel; results beyond the buffer are dropped, never blocked
// on
func NewSession(engine *Engine, resultBuffer int) *Session {
	s := &Session{
		engine:  engine,
		results: make(chan *FrameResult, resultBuffer),
		done:    make(chan struct{}),
	}

	s.cond = sync.NewCond(&s.mu)

	go s.run()

	return s
}

// Submit places a frame in the mailbox.  It never blocks; if the worker
// has not consumed the previous frame yet, that frame is dropped
func (s *Session) Submit(img *image.RGBA, ts time.Time,
	dets []detect.Detection) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.pending != nil {
		s.consecutiveDrops++
		s.totalDrops++
	} else {
		s.consecutiveDrops = 0
	}

	s.pending = &sessionFrame{img: img, ts: ts, dets: dets, epoch: s.epoch}

	s.cond.Signal()
}

// take blocks until a frame is pending or the session is closed
func (s *Session) take() (*sessionFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pending == nil && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return nil, false
	}

	f := s.pending
	s.pending = nil

	return f, true
}

// stale reports whether the frame predates the current session epoch
func (s *Session) stale(f *sessionFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return f.epoch != s.epoch || s.closed
}

// deliver publishes a result unless the session was reset after the
// frame was taken, in which case the stale result is discarded
func (s *Session) deliver(f *sessionFrame, res *FrameResult) {
	if s.stale(f) {
		return
	}

	select {
	case s.results <- res:
	default:
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		f, ok := s.take()
		if !ok {
			return
		}

		// a frame taken before a reset must never reach the cleared
		// engine, where it would seed the store and the global motion
		// pair of the next session
		if s.stale(f) {
			continue
		}

		res := s.engine.Process(f.img, f.ts, f.dets)

		// a reset that raced the pass leaves this frame in the store;
		// clear it again so the next session starts empty
		s.mu.Lock()
		reset := f.epoch != s.epoch
		s.mu.Unlock()

		if reset {
			s.engine.Reset()
			continue
		}

		s.deliver(f, res)
	}
}

// Results is the stream of per-frame outputs
func (s *Session) Results() <-chan *FrameResult {
	return s.results
}

// Reset clears the engine and discards any in-flight frame result
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.pending = nil
	s.mu.Unlock()

	s.engine.Reset()
}

// Epoch returns the current session generation, incremented by Reset
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch
}

// Drops returns the running and total dropped frame counts
func (s *Session) Drops() (consecutive, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.consecutiveDrops, s.totalDrops
}

// Close stops the worker and waits for it to exit
func (s *Session) Close() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.pending = nil
	s.cond.Signal()
	s.mu.Unlock()

	<-s.done
}
