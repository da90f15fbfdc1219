package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates an operation the current Phase does not
	// allow, such as stepping before Initialize or after Finished.
	ErrInvalidState = errors.New("sim: invalid state")

	// ErrNumericalDivergence indicates a solved voltage that is not finite
	// or lies outside the sanity band.
	ErrNumericalDivergence = errors.New("sim: numerical divergence")

	// ErrInvalidConfig indicates an unusable dt, stop time or option.
	ErrInvalidConfig = errors.New("sim: invalid config")
)

// SimulationError wraps an error with the step that produced it. Time is
// the last successfully committed time.
type SimulationError struct {
	Step    int
	Time    float64
	Segment int
	Value   float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f ms): segment %d voltage %g: %v", e.Step, e.Time, e.Segment, e.Value, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
