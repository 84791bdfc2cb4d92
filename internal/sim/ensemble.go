package sim

import (
	"context"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// Factory builds an independent simulator and initial state for one run.
// Simulators must not share controllers or sequencers.
type Factory func(run int) (*Simulator, dynamo.State, error)

type Outcome struct {
	Run    int
	X0     dynamo.State
	Result *Result
	Err    error
}

// Ensemble flies several independent missions in parallel. Each mission is
// still sequential.
type Ensemble struct {
	factory Factory
	runs    int
	workers int
}

func NewEnsemble(factory Factory, runs, workers int) *Ensemble {
	return &Ensemble{factory: factory, runs: runs, workers: workers}
}

// Run returns one outcome per run, in run order. A failed mission does not
// stop the others.
func (e *Ensemble) Run(ctx context.Context, cfg Config) []Outcome {
	outcomes := make([]Outcome, e.runs)

	dynamo.ParallelFor(e.runs, e.workers, func(start, end int) {
		for i := start; i < end; i++ {
			outcomes[i].Run = i

			s, x0, err := e.factory(i)
			if err != nil {
				outcomes[i].Err = err
				continue
			}
			outcomes[i].X0 = x0.Clone()
			outcomes[i].Result, outcomes[i].Err = s.Run(ctx, x0, cfg)
		}
	})

	return outcomes
}

// Failures counts outcomes that ended with an error.
func Failures(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
