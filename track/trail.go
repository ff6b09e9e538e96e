package track

import "sync"

// Point represents the x,y coordinates of a tracked center position
type Point struct {
	X, Y int
}

// history represents the recent path of one tracker
type history struct {
	points []Point
}

// Trail keeps a bounded history of tracked positions per tracker, used
// for drawing a motion trail
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by tracker id
	history map[string]*history
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size specifies the
// maximum length of trail to maintain per tracker
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[string]*history),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[string]*history)
}

// Add records a tracker's current center position
func (t *Trail) Add(id string, x, y float64) {
	t.Lock()
	defer t.Unlock()

	// init history if none exists yet for tracker id
	if _, exists := t.history[id]; !exists {
		t.history[id] = &history{}
	}

	h := t.history[id]

	h.points = append(h.points, Point{
		X: int(x),
		Y: int(y),
	})

	// check if history is exceeded and drop oldest point
	if len(h.points) > t.size {
		h.points = h.points[1:]
	}
}

// Remove drops the history for a specific tracker id
func (t *Trail) Remove(id string) {
	t.Lock()
	defer t.Unlock()

	delete(t.history, id)
}

// GetPoints gets the point history for a specific tracker id
func (t *Trail) GetPoints(id string) []Point {
	t.Lock()
	defer t.Unlock()

	if _, exists := t.history[id]; exists {
		return t.history[id].points
	}

	// no history yet
	return nil
}
