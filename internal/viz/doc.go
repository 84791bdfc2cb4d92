// Package viz draws flight paths for the terminal.
//
// [Canvas] is a Braille pixel grid; [Bounds] maps world coordinates onto it
// so a trajectory and its waypoints can be plotted in a few lines:
//
//	b := viz.FitBounds(0.1, viz.Points(h.States), viz.Points(waypoints))
//	c := viz.NewCanvas(60, 20)
//	c.Polyline(b, viz.Points(h.States))
//
// The lipgloss styles in this package are shared by the live view and the
// command line output.
package viz
