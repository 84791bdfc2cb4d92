package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rocketmpc/internal/control"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/integrators"
	"github.com/san-kum/rocketmpc/internal/mission"
	"github.com/san-kum/rocketmpc/internal/ocp"
	"github.com/san-kum/rocketmpc/internal/physics"
	"github.com/san-kum/rocketmpc/internal/sim"
)

const (
	floor     = 0.0
	threshold = 5.0
	tolerance = 1e-3
)

var hopConfig = sim.Config{Dt: 0.1, Duration: 20, ValidateState: true}

var waypoints = []dynamo.State{
	{100, 50, 0, 0, 0, 0},
	{200, 50, 0, 0, 0, 0},
}

func newMission(opts ...control.Option) *sim.Simulator {
	model := physics.NewPointMass()
	rk4 := integrators.NewRK4()

	problem, err := ocp.NewProblem(ocp.Config{
		Model:      model,
		Integrator: rk4,
		Horizon:    10,
		Dt:         0.1,
		Bounds: ocp.Bounds{
			Min: dynamo.Control{-20, -20, -20},
			Max: dynamo.Control{20, 20, 20},
		},
		AltitudeFloor: floor,
		Weights: ocp.Weights{
			Q:  []float64{10, 10, 1, 1, 1, 1},
			R:  []float64{0.01, 0.01, 0.01},
			Qf: []float64{100, 100, 10, 10, 10, 10},
		},
		Settings: ocp.Settings{Tolerance: tolerance},
	})
	Expect(err).NotTo(HaveOccurred())

	seq, err := mission.New(waypoints, threshold)
	Expect(err).NotTo(HaveOccurred())

	return sim.New(model, rk4, control.NewMPC(problem, opts...), seq)
}

var _ = Describe("Closed-loop mission", func() {
	Context("flying the two-waypoint hop", Ordered, func() {
		var result *sim.Result

		BeforeAll(func() {
			var err error
			result, err = newMission().Run(context.Background(), dynamo.State{0, 50, 0, 0, 0, 0}, hopConfig)
			Expect(err).NotTo(HaveOccurred())
		})

		It("records one entry per cycle after the initial condition", func() {
			Expect(result.States).To(HaveLen(hopConfig.Steps() + 1))
			Expect(result.Controls).To(HaveLen(hopConfig.Steps()))
			Expect(result.Waypoints).To(HaveLen(hopConfig.Steps() + 1))
			Expect(result.States[0]).To(Equal(dynamo.State{0, 50, 0, 0, 0, 0}))
			Expect(result.Completed).To(BeTrue())
		})

		It("switches waypoints once, at the first state within the threshold", func() {
			first := -1
			for i, x := range result.States {
				if x.PlanarDistance(waypoints[0]) < threshold {
					first = i
					break
				}
			}
			Expect(first).To(BeNumerically(">", 0), "vehicle never reached waypoint 0")

			Expect(result.Transitions()).To(Equal([]int{first}))
			for i, w := range result.Waypoints {
				if i < first {
					Expect(w).To(Equal(0), "entry %d", i)
				} else {
					Expect(w).To(Equal(1), "entry %d", i)
				}
			}
		})

		It("never lowers the waypoint index or skips one", func() {
			for i := 1; i < len(result.Waypoints); i++ {
				Expect(result.Waypoints[i] - result.Waypoints[i-1]).To(BeElementOf(0, 1))
			}
		})

		It("keeps every applied control inside its bounds", func() {
			for _, u := range result.Controls {
				for _, v := range u {
					Expect(v).To(BeNumerically(">=", -20))
					Expect(v).To(BeNumerically("<=", 20))
				}
			}
		})

		It("keeps the realized altitude above the floor", func() {
			for _, x := range result.States {
				Expect(x[dynamo.IdxY]).To(BeNumerically(">=", floor))
			}
		})

		It("settles on the final waypoint", func() {
			last := result.States[len(result.States)-1]
			Expect(last.PlanarDistance(waypoints[1])).To(BeNumerically("<", threshold))
			Expect(math.Hypot(last[dynamo.IdxVX], last[dynamo.IdxVY])).To(BeNumerically("<", 1))
		})
	})

	Context("with and without warm start", func() {
		It("flies the same mission", func() {
			start := dynamo.State{0, 50, 0, 0, 0, 0}
			warm, err := newMission(control.WithWarmStart(true)).Run(context.Background(), start, hopConfig)
			Expect(err).NotTo(HaveOccurred())
			cold, err := newMission(control.WithWarmStart(false)).Run(context.Background(), start, hopConfig)
			Expect(err).NotTo(HaveOccurred())

			Expect(warm.Transitions()).To(HaveLen(1))
			Expect(cold.Transitions()).To(HaveLen(1))

			warmEnd := warm.States[len(warm.States)-1]
			coldEnd := cold.States[len(cold.States)-1]
			Expect(warmEnd.PlanarDistance(waypoints[1])).To(BeNumerically("<", threshold))
			Expect(coldEnd.PlanarDistance(waypoints[1])).To(BeNumerically("<", threshold))
			Expect(warmEnd.PlanarDistance(coldEnd)).To(BeNumerically("<", 1))
		})
	})

	Context("starting below the floor", func() {
		It("halts at step 0 with only the initial condition recorded", func() {
			result, err := newMission().Run(context.Background(), dynamo.State{0, -1, 0, 0, 0, 0}, hopConfig)

			Expect(err).To(MatchError(dynamo.ErrInfeasible))

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Step).To(Equal(0))

			Expect(result.States).To(HaveLen(1))
			Expect(result.Controls).To(BeEmpty())
			Expect(result.Completed).To(BeFalse())
		})
	})

	Context("running an ensemble", func() {
		It("flies each mission on its own simulator", func() {
			factory := func(run int) (*sim.Simulator, dynamo.State, error) {
				defer GinkgoRecover()
				return newMission(), dynamo.State{0, 50 + float64(run), 0, 0, 0, 0}, nil
			}
			short := sim.Config{Dt: 0.1, Duration: 2}

			outcomes := sim.NewEnsemble(factory, 3, 3).Run(context.Background(), short)
			Expect(sim.Failures(outcomes)).To(Equal(0))
			for i, o := range outcomes {
				Expect(o.Result.States[0][dynamo.IdxY]).To(Equal(50 + float64(i)))
				Expect(o.Result.StepsTaken).To(Equal(short.Steps()))
			}
		})
	})
})
