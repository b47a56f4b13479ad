// Package physics provides the wheeled self-balancing body.
//
// [Balancer] implements [dynamo.Model] with five generalized coordinates
// (x, y, z, theta, phi) and two wheel-rate inputs. It also implements
// [dynamo.Kinematics] for the wheel-axle origin and the body's center of mass,
// and [dynamo.Hamiltonian] for mechanical energy.
//
// # Contacts
//
// Two unilateral gaps keep the body above ground: the wheel (z) and the far
// end of the body (z + L cos(theta) + r). Both are reported by Constraints;
// the contact integrator decides which are active.
//
//	b := physics.NewBalancer(physics.DefaultParameters())
//	m, h, err := b.Evaluate(0, x, u)   // M(q) and H(q, v, u)
//	c, j, err := b.Constraints(0, x, u)
package physics
