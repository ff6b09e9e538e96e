package estimate

import (
	"testing"

	"github.com/pointtrack/go-pointtrack/frame"
)

func defaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		PatchSize:        21,
		CoarseStep:       3,
		MinScore:         0.55,
		UpdateScore:      0.8,
		UpdateIntervalMs: 600,
		BlendAlpha:       0.15,
	}
}

func TestTemplateShiftRecovery(t *testing.T) {
	prevImg := flatFrame(400, 300, 128)
	stampNoise(prevImg, 100, 100, 12)

	curImg := flatFrame(400, 300, 128)
	stampNoise(curImg, 105, 103, 12)

	tpl, ok := frame.CapturePatch(asFrame(prevImg), 100, 100, 21)
	if !ok {
		t.Fatal("template capture failed")
	}

	m := NewTemplateMatcher(defaultTemplateConfig())

	c, ok := m.Match(asFrame(curImg), tpl, 100, 100, 24)
	if !ok {
		t.Fatal("template should match the shifted block")
	}

	if c.X != 105 || c.Y != 103 {
		t.Errorf("template match at (%f,%f), want (105,103)", c.X, c.Y)
	}

	if c.Conf < 0.9 {
		t.Errorf("clean translation should score high, got %f", c.Conf)
	}
}

func TestTemplateDegenerateAbsent(t *testing.T) {
	flat := asFrame(flatFrame(200, 200, 90))

	tpl, ok := frame.CapturePatch(flat, 100, 100, 21)
	if !ok {
		t.Fatal("capture failed")
	}

	m := NewTemplateMatcher(defaultTemplateConfig())

	if _, ok := m.Match(flat, tpl, 100, 100, 24); ok {
		t.Error("zero variance template must yield no candidate")
	}
}

func TestTemplateUpdateGating(t *testing.T) {
	m := NewTemplateMatcher(defaultTemplateConfig())

	if m.ShouldUpdate(0.7, 10000) {
		t.Error("low confidence must not update the template")
	}

	if m.ShouldUpdate(0.9, 100) {
		t.Error("update before the minimum interval must be blocked")
	}

	if !m.ShouldUpdate(0.9, 700) {
		t.Error("confident match after the interval should update")
	}
}
