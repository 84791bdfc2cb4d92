// Package control provides the receding-horizon controller.
//
// [MPC] implements [dynamo.Controller]. Every call to Compute solves the full
// horizon from the measured state towards the active reference and applies
// only the first control of the plan:
//
//	problem, _ := ocp.NewProblem(cfg)
//	ctrl := control.NewMPC(problem, control.WithFallback(control.FallbackShift))
//	u, err := ctrl.Compute(ctx, x, ref)
//
// The rest of each plan is kept privately as a warm start for the next solve
// and, under [FallbackShift], as a backup when a solve runs out of budget.
package control
