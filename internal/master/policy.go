package master

import "github.com/san-kum/cosim/internal/fmi"

// DiscardPolicy decides what happens when a component discards the step
// [t, t+h). Returning nil means the component has reached t+h by some other
// route; any error aborts the run.
type DiscardPolicy interface {
	HandleDiscard(c *fmi.Component, t, h float64) error
}

// FailOnDiscard aborts the run on the first discarded step.
type FailOnDiscard struct{}

func (FailOnDiscard) HandleDiscard(c *fmi.Component, t, h float64) error {
	return &fmi.StepError{Component: c.Name(), Op: "step", Time: t, Status: fmi.StatusDiscard}
}

// Subdivide retries a discarded step as two half steps, recursing on any
// half that is discarded again, at most MaxDepth levels deep.
type Subdivide struct {
	MaxDepth int
}

func (p Subdivide) HandleDiscard(c *fmi.Component, t, h float64) error {
	return p.retry(c, t, h, 1)
}

func (p Subdivide) retry(c *fmi.Component, t, h float64, depth int) error {
	if depth > p.MaxDepth {
		return &fmi.StepError{Component: c.Name(), Op: "step", Time: t, Status: fmi.StatusDiscard}
	}
	half := h / 2
	for i := 0; i < 2; i++ {
		ti := t + float64(i)*half
		st, err := c.Step(ti, half)
		if err != nil {
			return err
		}
		if st == fmi.StatusDiscard {
			if err := p.retry(c, ti, half, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
