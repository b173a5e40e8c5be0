package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/cosim/internal/master"
)

type Point struct{ X, Y float64 }

// Path is the curve traced by two logged columns.
type Path struct {
	XColumn, YColumn string
	Points           []Point
}

func NewPath(log *master.RunLog, xColumn, yColumn string) (*Path, error) {
	xs, err := log.Column(xColumn)
	if err != nil {
		return nil, err
	}
	ys, err := log.Column(yColumn)
	if err != nil {
		return nil, err
	}
	p := &Path{XColumn: xColumn, YColumn: yColumn, Points: make([]Point, len(xs))}
	for i := range xs {
		p.Points[i] = Point{xs[i], ys[i]}
	}
	return p, nil
}

// PathToASCII draws the path on a width x height character canvas with the
// axes shown where they fall inside the padded bounds.
func PathToASCII(path *Path, width, height int) string {
	if path == nil || len(path.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := path.Points[0].X, path.Points[0].X
	minY, maxY := path.Points[0].Y, path.Points[0].Y
	for _, p := range path.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == '│' {
				canvas[row][col] = '┼'
			} else {
				canvas[row][col] = '─'
			}
		}
	}

	for i, p := range path.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		mark := '•'
		if i == 0 {
			mark = 'S'
		} else if i == len(path.Points)-1 {
			mark = 'E'
		}
		canvas[row][col] = mark
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	fmt.Fprintf(&sb, "x: %s [%.3g, %.3g]  y: %s [%.3g, %.3g]\n",
		path.XColumn, minX, maxX, path.YColumn, minY, maxY)
	return sb.String()
}

// Crossings returns the interpolated times at which column rises through
// level.
func Crossings(log *master.RunLog, column string, level float64) ([]float64, error) {
	vals, err := log.Column(column)
	if err != nil {
		return nil, err
	}
	times := log.Times()
	var out []float64
	for i := 1; i < len(vals); i++ {
		prev, curr := vals[i-1], vals[i]
		if prev < level && curr >= level {
			frac := (level - prev) / (curr - prev)
			out = append(out, times[i-1]+frac*(times[i]-times[i-1]))
		}
	}
	return out, nil
}
