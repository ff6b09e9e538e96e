package dnn

import (
	"sync"
)

// Pool is a simple detector pool to open multiple of the same model for
// concurrent detection across video streams
type Pool struct {
	// pool of detectors
	detectors chan *Detector
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a new detector pool
func NewPool(size int, cfg Config) (*Pool, error) {
	p := &Pool{
		detectors: make(chan *Detector, size),
		size:      size,
	}

	for i := 0; i < size; i++ {
		det, err := NewDetector(cfg)

		if err != nil {
			// close any instances that may have been created before
			// receiving the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(det)
	}

	return p, nil
}

// Get a detector from the pool
func (p *Pool) Get() *Detector {
	return <-p.detectors
}

// Return a detector to the pool
func (p *Pool) Return(det *Detector) {
	select {
	case p.detectors <- det:
	default:
		// pool is full or closed
	}
}

// Close the pool and all detectors in it
func (p *Pool) Close() {
	p.close.Do(func() {
		// close channel
		close(p.detectors)

		// close all detectors
		for next := range p.detectors {
			_ = next.Close()
		}
	})
}
