// Package analysis provides post-run tools for balancer trajectories.
//
//   - [PowerSpectrum]: one-sided amplitude spectrum of a sampled signal
//   - [GrowthRate]: exponential separation rate of a perturbed trajectory
//   - [SettlingTime]: when a signal enters and stays in a band around its final value
//
// # Tipping rate
//
// The upright balancer is an unstable equilibrium:
//
//	rate, err := analysis.GrowthRate(solver, x0, u, physics.IdxTheta, 1e-7, 1e-3, 2)
//	// rate > 0: a pitch disturbance grows like exp(rate*t)
package analysis
