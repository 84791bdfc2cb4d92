package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/viz"
)

const background = "#0a0a0a"

// CanvasToSVG converts a Braille canvas to SVG, one circle per lit dot.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}

	pw, ph := canvas.Pixels()
	width := float64(pw) * scale
	height := float64(ph) * scale

	var sb strings.Builder
	sb.WriteString(header(width, height))
	sb.WriteString("<g fill=\"#00ff00\">\n")

	dotRadius := scale * 0.4
	canvas.Dots(func(x, y int) {
		cx := float64(x)*scale + scale/2
		cy := float64(y)*scale + scale/2
		fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius)
	})

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// TrajectoryToSVG draws the flown path of h with the mission waypoints
// marked. Waypoints the vehicle reached are filled, the rest are hollow.
func TrajectoryToSVG(h *sim.History, waypoints []dynamo.State, width, height int, stroke string) string {
	if h == nil || h.Len() < 2 {
		return ""
	}

	path := viz.Points(h.States)
	marks := viz.Points(waypoints)
	b := viz.FitBounds(0.1, path, marks)
	w, ht := float64(width), float64(height)

	var sb strings.Builder
	sb.WriteString(header(w, ht))
	fmt.Fprintf(&sb, "<path fill=\"none\" stroke=\"%s\" stroke-width=\"1.5\" d=\"", stroke)
	for i, p := range path {
		x, y := b.Project(p, w, ht)
		if i == 0 {
			fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")

	reached := h.Waypoints[h.Len()-1]
	for i, p := range marks {
		x, y := b.Project(p, w, ht)
		fill := "none"
		if i < reached {
			fill = "#ff00ff"
		}
		fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"4\" stroke=\"#ff00ff\" fill=\"%s\"/>\n", x, y, fill)
	}

	sb.WriteString("</svg>")
	return sb.String()
}

func header(width, height float64) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}
