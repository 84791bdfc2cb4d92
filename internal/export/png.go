package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/sim"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// PlotOptions sizes a rendered figure.
type PlotOptions struct {
	Width, Height vg.Length
	DPI           int
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 8 * vg.Inch, Height: 6 * vg.Inch, DPI: 96}
}

var (
	pathColor     = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	waypointColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	floorColor    = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
)

// TrajectoryPlot plots altitude against downrange position with the
// waypoints as points.
func TrajectoryPlot(h *sim.History, waypoints []dynamo.State) (*plot.Plot, error) {
	if h == nil || h.Len() == 0 {
		return nil, fmt.Errorf("plot data invalid: empty history")
	}

	p := plot.New()
	p.Title.Text = "Trajectory"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "altitude"

	line, err := plotter.NewLine(xys(h.Column(dynamo.IdxX), h.Column(dynamo.IdxY)))
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(2)
	line.LineStyle.Color = pathColor
	p.Add(line)
	p.Legend.Add("flown", line)

	if len(waypoints) > 0 {
		pts := make(plotter.XYs, len(waypoints))
		for i, wp := range waypoints {
			pts[i].X = wp[dynamo.IdxX]
			pts[i].Y = wp[dynamo.IdxY]
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = waypointColor
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("waypoints", scatter)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// AltitudePlot plots altitude against time with the floor drawn across.
func AltitudePlot(h *sim.History, floor float64) (*plot.Plot, error) {
	if h == nil || h.Len() == 0 {
		return nil, fmt.Errorf("plot data invalid: empty history")
	}

	p := plot.New()
	p.Title.Text = "Altitude"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "altitude"

	line, err := plotter.NewLine(xys(h.Times, h.Column(dynamo.IdxY)))
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(2)
	line.LineStyle.Color = pathColor
	p.Add(line)

	end := h.Times[len(h.Times)-1]
	bound, err := plotter.NewLine(plotter.XYs{{X: h.Times[0], Y: floor}, {X: end, Y: floor}})
	if err != nil {
		return nil, err
	}
	bound.LineStyle.Color = floorColor
	bound.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(bound)
	p.Legend.Add("floor", bound)

	p.Add(plotter.NewGrid())
	return p, nil
}

// WritePNG renders p as a PNG image.
func WritePNG(w io.Writer, p *plot.Plot, opts PlotOptions) error {
	c := vgimg.NewWith(
		vgimg.UseWH(opts.Width, opts.Height),
		vgimg.UseDPI(opts.DPI),
	)
	p.Draw(draw.New(c))

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return nil
}

func xys(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}
