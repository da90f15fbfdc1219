package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/cablesim/internal/record"
)

// PhasePlane pairs two traces sampled on the same time axis, such as
// soma voltage against the n gate.
type PhasePlane struct {
	XLabel, YLabel string
	Points         []struct{ X, Y float64 }
}

// NewPhasePlane pairs x and y sample by sample.
func NewPhasePlane(x, y *record.Trace) (*PhasePlane, error) {
	if x.Len() != y.Len() {
		return nil, fmt.Errorf("analysis: traces %q and %q have %d and %d samples", x.Label, y.Label, x.Len(), y.Len())
	}
	plane := &PhasePlane{
		XLabel: x.Label,
		YLabel: y.Label,
		Points: make([]struct{ X, Y float64 }, x.Len()),
	}
	for i := range plane.Points {
		plane.Points[i].X = x.Y[i]
		plane.Points[i].Y = y.Y[i]
	}
	return plane, nil
}

// ASCII renders the plane as a width x height character plot with axes
// drawn where zero is in range.
func (pp *PhasePlane) ASCII(width, height int) string {
	if pp == nil || len(pp.Points) == 0 {
		return ""
	}

	minX, maxX := pp.Points[0].X, pp.Points[0].X
	minY, maxY := pp.Points[0].Y, pp.Points[0].Y

	for _, p := range pp.Points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
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
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for _, p := range pp.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))

		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	// axes only where zero is visible
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
