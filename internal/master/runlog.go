package master

import "fmt"

// Row is one communication step: the step index, its end time, and one
// value per logged column.
type Row struct {
	Step   int
	Time   float64
	Values []float64
}

// RunLog is the append-only output table of a run.
type RunLog struct {
	Columns []string
	Rows    []Row
}

func newRunLog(columns []string, capacity int) *RunLog {
	return &RunLog{Columns: columns, Rows: make([]Row, 0, capacity)}
}

func (l *RunLog) append(r Row) { l.Rows = append(l.Rows, r) }

func (l *RunLog) Len() int { return len(l.Rows) }

// ColumnIndex returns the position of name in Columns, or -1.
func (l *RunLog) ColumnIndex(name string) int {
	for i, c := range l.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the series of one logged variable.
func (l *RunLog) Column(name string) ([]float64, error) {
	idx := l.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("master: no column %q in run log", name)
	}
	out := make([]float64, len(l.Rows))
	for i, r := range l.Rows {
		out[i] = r.Values[idx]
	}
	return out, nil
}

func (l *RunLog) Times() []float64 {
	out := make([]float64, len(l.Rows))
	for i, r := range l.Rows {
		out[i] = r.Time
	}
	return out
}

// Observer sees each row right after it is appended.
type Observer interface {
	OnStep(r Row)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Row)

func (f ObserverFunc) OnStep(r Row) { f(r) }
