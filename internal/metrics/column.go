package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/master"
)

type Final struct {
	name  string
	col   int
	value float64
}

func NewFinal(column string, col int) *Final {
	return &Final{name: KindFinal + ":" + column, col: col}
}

func (f *Final) Name() string         { return f.name }
func (f *Final) Observe(r master.Row) { f.value = r.Values[f.col] }
func (f *Final) Value() float64       { return f.value }
func (f *Final) Reset()               { f.value = 0 }

type PeakAbs struct {
	name string
	col  int
	peak float64
}

func NewPeakAbs(column string, col int) *PeakAbs {
	return &PeakAbs{name: KindPeakAbs + ":" + column, col: col}
}

func (p *PeakAbs) Name() string { return p.name }

func (p *PeakAbs) Observe(r master.Row) {
	p.peak = math.Max(p.peak, math.Abs(r.Values[p.col]))
}

func (p *PeakAbs) Value() float64 { return p.peak }
func (p *PeakAbs) Reset()         { p.peak = 0 }

type Mean struct {
	name    string
	col     int
	sum     float64
	samples int
}

func NewMean(column string, col int) *Mean {
	return &Mean{name: KindMean + ":" + column, col: col}
}

func (m *Mean) Name() string {
	return m.name
}

func (m *Mean) Observe(r master.Row) {
	m.sum += r.Values[m.col]
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

// Threshold is the fraction of rows whose column stays within ±bound.
type Threshold struct {
	name       string
	col        int
	bound      float64
	violations int
	samples    int
}

func NewThreshold(column string, col int, bound float64) *Threshold {
	return &Threshold{
		name:  KindThreshold + ":" + column,
		col:   col,
		bound: bound,
	}
}

func (t *Threshold) Name() string {
	return t.name
}

func (t *Threshold) Observe(r master.Row) {
	t.samples++
	if math.Abs(r.Values[t.col]) > t.bound {
		t.violations++
	}
}

func (t *Threshold) Value() float64 {
	if t.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(t.violations)/float64(t.samples)
}

func (t *Threshold) Reset() {
	t.violations = 0
	t.samples = 0
}
