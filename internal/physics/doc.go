// Package physics provides the vehicle models flown by the controller.
//
// Each model implements [dynamo.Linearizable], defining the differential
// equations of the planar vehicle and their analytic Jacobians:
//
//   - [Rocket]: thrust-vectoring rocket in an inverse-square gravity field
//     with a centripetal correction
//   - [PointMass]: directly actuated point mass under uniform gravity
//
// Both models also implement [dynamo.Hamiltonian] and report specific
// mechanical energy.
//
// # Model mismatch
//
// The controller's internal model and the simulated plant are independent
// values, so a mission can fly the [Rocket] while predicting with a
// differently parameterized one:
//
//	plant := physics.NewRocket()
//	model := physics.NewRocket()
//	model.Mass *= 1.1
package physics
