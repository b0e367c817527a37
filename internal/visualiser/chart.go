package visualiser

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/echomap/internal/fsutil"
	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/security"
	"github.com/banshee-data/echomap/internal/sonar"
)

// DefaultTitle heads charts built without an explicit title.
const DefaultTitle = "3D Sonar Mapping"

// rangePalette runs near to far.
var rangePalette = []color.RGBA{
	{0x31, 0x36, 0x95, 0xff},
	{0x45, 0x75, 0xb4, 0xff},
	{0x74, 0xad, 0xd1, 0xff},
	{0xab, 0xd9, 0xe9, 0xff},
	{0xfe, 0xe0, 0x90, 0xff},
	{0xfd, 0xae, 0x61, 0xff},
	{0xf4, 0x6d, 0x43, 0xff},
	{0xd7, 0x30, 0x27, 0xff},
}

func hexPalette() []string {
	out := make([]string, len(rangePalette))
	for i, c := range rangePalette {
		out[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return out
}

// NewScatter3D builds a 3D scatter of cloud with one point per echo. Each
// point carries [x, y, z, range] so the visual map can colour by range.
func NewScatter3D(cloud sonar.PointCloud, title string) *charts.Scatter3D {
	if title == "" {
		title = DefaultTitle
	}

	points := cloud.Annotated()
	data := make([]opts.Chart3DData, 0, len(points))
	maxRange := 0.0
	for _, p := range points {
		data = append(data, opts.Chart3DData{
			Value: []interface{}{p.X, p.Y, p.Z, p.Range},
		})
		maxRange = math.Max(maxRange, p.Range)
	}
	if maxRange == 0 {
		maxRange = 1
	}

	subtitle := fmt.Sprintf("%d points from %d directions", len(points), len(cloud.Samples))
	if cloud.SessionID != "" {
		subtitle = fmt.Sprintf("session %s, %s", cloud.SessionID, subtitle)
	}

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1200px",
			Height:    "800px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X (m)", Show: opts.Bool(true)}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y (m)", Show: opts.Bool(true)}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z (m)", Show: opts.Bool(true)}),
		charts.WithGrid3DOpts(opts.Grid3D{
			Show:        opts.Bool(true),
			ViewControl: &opts.ViewControl{AutoRotate: opts.Bool(false)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Dimension:  "3",
			Min:        0,
			Max:        float32(maxRange),
			Text:       []string{"far", "near"},
			InRange:    &opts.VisualMapInRange{Color: hexPalette()},
		}),
	)
	scatter.AddSeries("echoes", data)
	return scatter
}

// RenderHTML writes the chart page for cloud to w.
func RenderHTML(w io.Writer, cloud sonar.PointCloud, title string) error {
	return NewScatter3D(cloud, title).Render(w)
}

// HTMLSink writes the 3D scatter page. Writer takes precedence over Path;
// Path is created through FS (the OS filesystem when nil) and must pass
// security.ValidateExportPath on the OS filesystem.
type HTMLSink struct {
	Writer io.Writer
	Path   string
	Title  string
	FS     fsutil.FileSystem
}

// Consume renders cloud.
func (s *HTMLSink) Consume(ctx context.Context, cloud sonar.PointCloud) error {
	if len(cloud.Points) == 0 {
		return sonar.ErrNoData
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Writer != nil {
		return RenderHTML(s.Writer, cloud, s.Title)
	}
	if s.Path == "" {
		return fmt.Errorf("html sink: no writer or path configured")
	}
	fs := filesystem(s.FS)
	if err := checkExportPath(fs, s.Path); err != nil {
		return fmt.Errorf("html sink: %w", err)
	}

	if err := writeFile(fs, s.Path, func(w io.Writer) error {
		return RenderHTML(w, cloud, s.Title)
	}); err != nil {
		return fmt.Errorf("html sink: %w", err)
	}
	monitoring.Logf("Wrote %d points to %s", len(cloud.Points), s.Path)
	return nil
}

func filesystem(fs fsutil.FileSystem) fsutil.FileSystem {
	if fs == nil {
		return fsutil.OSFileSystem{}
	}
	return fs
}

// checkExportPath restricts writes on the OS filesystem to the export
// directories. Other filesystems are not checked.
func checkExportPath(fs fsutil.FileSystem, path string) error {
	if _, ok := fs.(fsutil.OSFileSystem); !ok {
		return nil
	}
	return security.ValidateExportPath(path)
}

// writeFile creates path (and its directory) and hands the file to write.
// The close error is reported when write succeeds.
func writeFile(fs fsutil.FileSystem, path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(f)
}
