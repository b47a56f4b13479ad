package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates a state or control vector of the wrong length.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and model")

	// ErrSingularMassMatrix indicates M(q) could not be factorized, even after regularization.
	ErrSingularMassMatrix = errors.New("dynamo: singular mass matrix")

	// ErrContactSolve indicates the complementarity QP was infeasible or diverged.
	ErrContactSolve = errors.New("dynamo: contact solve failure")

	// ErrIntegrationFailure indicates an adaptive integrator exhausted its step budget.
	ErrIntegrationFailure = errors.New("dynamo: integration failure")

	// ErrInvalidStep indicates a non-positive time step or an empty span.
	ErrInvalidStep = errors.New("dynamo: invalid time step")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
