// Package export renders stored runs as standalone SVG plots.
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/master"
)

var ErrTooFewPoints = errors.New("export: need at least two points")

const background = "#0a0a0a"

type bounds struct{ minX, maxX, minY, maxY float64 }

// padded returns the bounds of pts widened by 10% on each side.
func padded(pts []analysis.Point) bounds {
	b := bounds{pts[0].X, pts[0].X, pts[0].Y, pts[0].Y}
	for _, p := range pts {
		b.minX, b.maxX = min(b.minX, p.X), max(b.maxX, p.X)
		b.minY, b.maxY = min(b.minY, p.Y), max(b.maxY, p.Y)
	}
	rangeX, rangeY := b.maxX-b.minX, b.maxY-b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
	return b
}

// PathToSVG draws the path as one polyline, y pointing up, with its start
// and end marked.
func PathToSVG(path *analysis.Path, width, height int, stroke string) (string, error) {
	if path == nil || len(path.Points) < 2 {
		return "", ErrTooFewPoints
	}
	b := padded(path.Points)
	px := func(p analysis.Point) (float64, float64) {
		return (p.X - b.minX) / (b.maxX - b.minX) * float64(width),
			float64(height) - (p.Y-b.minY)/(b.maxY-b.minY)*float64(height)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, background, stroke)
	for i, p := range path.Points {
		x, y := px(p)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")

	sx, sy := px(path.Points[0])
	ex, ey := px(path.Points[len(path.Points)-1])
	fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"4\" fill=\"#00ff88\"/>\n", sx, sy)
	fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"4\" fill=\"#ff4444\"/>\n", ex, ey)
	fmt.Fprintf(&sb, "<text x=\"8\" y=\"16\" fill=\"#888899\" font-family=\"monospace\" font-size=\"12\">%s vs %s</text>\n",
		path.YColumn, path.XColumn)
	sb.WriteString("</svg>")
	return sb.String(), nil
}

// ColumnToSVG plots one logged column against time.
func ColumnToSVG(log *master.RunLog, column string, width, height int, stroke string) (string, error) {
	vals, err := log.Column(column)
	if err != nil {
		return "", err
	}
	times := log.Times()
	path := &analysis.Path{XColumn: "time", YColumn: column, Points: make([]analysis.Point, len(vals))}
	for i := range vals {
		path.Points[i] = analysis.Point{X: times[i], Y: vals[i]}
	}
	return PathToSVG(path, width, height, stroke)
}
