// Package metrics summarises a run one logged column at a time. Metrics are
// attached to the scheduler as observers and see every row as it is logged.
package metrics

import (
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/master"
)

const (
	KindFinal     = "final"
	KindPeakAbs   = "peak_abs"
	KindMean      = "mean"
	KindThreshold = "threshold"
)

type Metric interface {
	Name() string
	Observe(r master.Row)
	Value() float64
	Reset()
}

// New builds a metric of the given kind over column. columns is the log
// layout the metric will observe.
func New(kind, column string, bound float64, columns []string) (Metric, error) {
	idx := -1
	for i, c := range columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("metrics: column %q is not logged", column)
	}
	switch kind {
	case KindFinal:
		return NewFinal(column, idx), nil
	case KindPeakAbs:
		return NewPeakAbs(column, idx), nil
	case KindMean:
		return NewMean(column, idx), nil
	case KindThreshold:
		if bound <= 0 {
			return nil, fmt.Errorf("metrics: threshold on %q needs a positive bound", column)
		}
		return NewThreshold(column, idx, bound), nil
	default:
		return nil, fmt.Errorf("metrics: unknown kind %q", kind)
	}
}

// Set is a group of metrics observed together.
type Set []Metric

func (s Set) OnStep(r master.Row) {
	for _, m := range s {
		m.Observe(r)
	}
}

// Values keys each metric's value by name. Later metrics win on a name
// clash.
func (s Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s))
	for _, m := range s {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, m := range s {
		names[i] = m.Name()
	}
	sort.Strings(names)
	return names
}
