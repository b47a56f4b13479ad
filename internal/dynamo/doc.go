// Package dynamo provides the shared vocabulary for constrained multibody simulation.
//
// The package defines the fundamental interfaces and types:
//
//   - [State]: interleaved generalized positions and velocities
//   - [Model]: mass matrix, bias forces and unilateral constraints
//   - [Solver]: single-step and trajectory advancement
//   - [Trajectory]: sampled solution with optional contact reports
//
// # Example
//
//	model := physics.NewBalancer(physics.DefaultParameters())
//	solver := integrators.NewMoreauJean(model)
//	traj, err := solver.Solve(dynamo.Span{End: 10}, x0, u, 1e-3)
//
// # Thread Safety
//
// Models and solvers hold no mutable state; the caller owns every State.
// Concurrent calls on the same solver are safe as long as the inputs are not
// shared mutably.
package dynamo
