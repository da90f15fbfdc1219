// Package export renders recorded traces as PNG, SVG or PDF figures.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/cablesim/internal/analysis"
	"github.com/san-kum/cablesim/internal/record"
)

var (
	ErrNoTraces          = errors.New("export: no traces to plot")
	ErrUnsupportedFormat = errors.New("export: unsupported format")
)

const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 4 * vg.Inch
)

var formats = map[string]bool{"png": true, "svg": true, "pdf": true}

// Format returns the figure format implied by path's extension.
func Format(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !formats[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return ext, nil
}

func axisLabel(traces []*record.Trace) string {
	variable := traces[0].Probe.Variable
	for _, tr := range traces[1:] {
		if tr.Probe.Variable != variable {
			return "value"
		}
	}
	if variable == record.Voltage || variable == "" {
		return "Vm (mV)"
	}
	return variable
}

// Plot draws every trace against time on one set of axes.
func Plot(title string, traces []*record.Trace) (*plot.Plot, error) {
	if len(traces) == 0 {
		return nil, ErrNoTraces
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t (ms)"
	p.Y.Label.Text = axisLabel(traces)
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for i, tr := range traces {
		pts := make(plotter.XYs, tr.Len())
		for j := range pts {
			pts[j].X = tr.T[j]
			pts[j].Y = tr.Y[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("trace %q: %w", tr.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(tr.Label, line)
	}
	return p, nil
}

// PhasePlot draws a phase plane as a single curve.
func PhasePlot(pp *analysis.PhasePlane) (*plot.Plot, error) {
	if pp == nil || len(pp.Points) == 0 {
		return nil, ErrNoTraces
	}

	p := plot.New()
	p.Title.Text = pp.YLabel + " vs " + pp.XLabel
	p.X.Label.Text = pp.XLabel
	p.Y.Label.Text = pp.YLabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(pp.Points))
	for i, pt := range pp.Points {
		pts[i].X, pts[i].Y = pt.X, pt.Y
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	return p, nil
}

// WriteTo renders p in format to w.
func WriteTo(w io.Writer, p *plot.Plot, format string, width, height vg.Length) error {
	if !formats[format] {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes p to path at the default size, in the format the extension
// names.
func Save(path string, p *plot.Plot) error {
	format, err := Format(path)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteTo(file, p, format, DefaultWidth, DefaultHeight); err != nil {
		return err
	}
	return file.Close()
}

// SaveTraces plots traces and saves them to path.
func SaveTraces(path, title string, traces []*record.Trace) error {
	p, err := Plot(title, traces)
	if err != nil {
		return err
	}
	return Save(path, p)
}
