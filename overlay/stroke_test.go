package overlay

import "testing"

func squareStroke(x, y, size float64) *Stroke {
	return NewStroke([]Point{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
	})
}

func TestStrokeContains(t *testing.T) {
	s := squareStroke(100, 100, 50)

	if !s.Contains(125, 125) {
		t.Error("center of the square should be contained")
	}

	if s.Contains(200, 200) {
		t.Error("point outside the square should not be contained")
	}
}

func TestStrokeContainsOpenPolyline(t *testing.T) {
	// an L shaped open stroke closes implicitly into a triangle-ish
	// region
	s := NewStroke([]Point{
		{X: 0, Y: 0},
		{X: 100, Y: 0},
		{X: 100, Y: 100},
	})

	if !s.Contains(80, 20) {
		t.Error("point inside the implicit closure should be contained")
	}

	if s.Contains(20, 80) {
		t.Error("point outside the implicit closure should not be contained")
	}
}

func TestStrokeDegenerate(t *testing.T) {
	s := NewStroke([]Point{{X: 10, Y: 10}, {X: 20, Y: 20}})

	if s.Contains(15, 15) {
		t.Error("a two point stroke cannot contain anything")
	}
}

func TestStrokeTranslate(t *testing.T) {
	s := squareStroke(100, 100, 50)
	s.Translate(10, -5)

	if s.Points[0].X != 110 || s.Points[0].Y != 95 {
		t.Errorf("first point (%f,%f), want (110,95)",
			s.Points[0].X, s.Points[0].Y)
	}

	if !s.Contains(135, 120) {
		t.Error("translated square should contain its translated center")
	}
}

func TestStrokeAttachment(t *testing.T) {
	s := squareStroke(0, 0, 10)

	if s.TrackerID != "" {
		t.Fatal("new stroke should be independent")
	}

	s.AttachTo("id-1")

	if s.TrackerID != "id-1" {
		t.Errorf("tracker id %q, want id-1", s.TrackerID)
	}

	s.Detach()

	if s.TrackerID != "" {
		t.Error("detached stroke should be independent")
	}
}
