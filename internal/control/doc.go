// Package control provides wheel-rate command sources for the balancer.
//
// Every provider implements [dynamo.Controller] and is queried once per step
// by the runner:
//
//   - [Constant]: fixed command, [NewNone] for zero drive
//   - [Schedule]: piecewise-constant commands keyed by start time
//   - [Latest]: most recent sample published by an asynchronous producer
//   - [PitchPID]: pitch-hold feedback driving both wheels together
//   - [Feedback]: linear state feedback u = -K (x - x*)
//
// # Usage
//
//	src := control.NewLatest(2)
//	go poll(src)  // src.Publish(sample, stamp) from the receiver goroutine
//	r := sim.NewRunner(solver, src, nil)
//
// Providers return a fresh slice on every call; callers may keep it.
package control
