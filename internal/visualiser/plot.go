package visualiser

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/echomap/internal/fsutil"
	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/security"
	"github.com/banshee-data/echomap/internal/sonar"
)

// Projection selects which two cartesian axes a PNG view plots.
type Projection int

const (
	// TopView plots X against Y, looking down the Z axis.
	TopView Projection = iota
	// SideView plots X against Z.
	SideView
)

func (p Projection) String() string {
	switch p {
	case TopView:
		return "top"
	case SideView:
		return "side"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

func (p Projection) axes() (x, y string) {
	if p == SideView {
		return "X (m)", "Z (m)"
	}
	return "X (m)", "Y (m)"
}

func (p Projection) project(pt sonar.Point3D) plotter.XY {
	if p == SideView {
		return plotter.XY{X: pt.X, Y: pt.Z}
	}
	return plotter.XY{X: pt.X, Y: pt.Y}
}

// Default PNG page size.
const (
	DefaultPlotWidth  = 8 * vg.Inch
	DefaultPlotHeight = 8 * vg.Inch
)

// NewProjectionPlot draws cloud onto a 2D plot, colouring each echo by range.
func NewProjectionPlot(cloud sonar.PointCloud, proj Projection) (*plot.Plot, error) {
	points := cloud.Annotated()
	xys := make(plotter.XYs, len(points))
	maxRange := 0.0
	for i, p := range points {
		xys[i] = proj.project(p.Point3D)
		maxRange = math.Max(maxRange, p.Range)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s view", DefaultTitle, proj)
	p.X.Label.Text, p.Y.Label.Text = proj.axes()
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("%s view: %w", proj, err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		sty := scatter.GlyphStyle
		sty.Color = rangeColor(points[i].Range, maxRange)
		return sty
	}
	p.Add(scatter)

	// The origin marks the probe head.
	origin, err := plotter.NewScatter(plotter.XYs{{}})
	if err != nil {
		return nil, err
	}
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	origin.GlyphStyle.Radius = vg.Points(4)
	origin.GlyphStyle.Color = color.Black
	p.Add(origin)
	p.Legend.Add("probe", origin)
	p.Legend.Top = true

	return p, nil
}

// rangeColor picks from rangePalette by r/maxRange.
func rangeColor(r, maxRange float64) color.Color {
	idx := 0
	if maxRange > 0 {
		idx = int(r / maxRange * float64(len(rangePalette)-1))
	}
	return rangePalette[min(max(idx, 0), len(rangePalette)-1)]
}

// PlotSink writes one PNG per projection into Dir, named
// <session>_<projection>.png. Dir must pass security.ValidateExportPath
// when FS is the OS filesystem.
type PlotSink struct {
	Dir         string
	Projections []Projection // defaults to top and side
	Width       vg.Length
	Height      vg.Length
	FS          fsutil.FileSystem

	written []string
}

// Consume renders every projection of cloud.
func (s *PlotSink) Consume(ctx context.Context, cloud sonar.PointCloud) error {
	if len(cloud.Points) == 0 {
		return sonar.ErrNoData
	}
	if s.Dir == "" {
		return fmt.Errorf("plot sink: no output directory")
	}
	fs := filesystem(s.FS)
	if err := checkExportPath(fs, s.Dir); err != nil {
		return fmt.Errorf("plot sink: %w", err)
	}

	projections := s.Projections
	if len(projections) == 0 {
		projections = []Projection{TopView, SideView}
	}
	w, h := s.Width, s.Height
	if w <= 0 {
		w = DefaultPlotWidth
	}
	if h <= 0 {
		h = DefaultPlotHeight
	}

	s.written = s.written[:0]
	for _, proj := range projections {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := NewProjectionPlot(cloud, proj)
		if err != nil {
			return fmt.Errorf("plot sink: %w", err)
		}
		wt, err := p.WriterTo(w, h, "png")
		if err != nil {
			return fmt.Errorf("plot sink: %w", err)
		}
		name := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.png", security.SanitizeFilename(cloud.SessionID), proj))
		if err := writeFile(fs, name, func(out io.Writer) error {
			_, err := wt.WriteTo(out)
			return err
		}); err != nil {
			return fmt.Errorf("plot sink: %w", err)
		}
		s.written = append(s.written, name)
	}
	monitoring.Logf("Wrote %d projection(s) to %s", len(projections), s.Dir)
	return nil
}

// Written lists the files produced by the last Consume.
func (s *PlotSink) Written() []string {
	return append([]string(nil), s.written...)
}
