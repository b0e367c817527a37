package visualiser

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/echomap/internal/fsutil"
	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonar"
)

// ASCHeader is the comment line written before the points.
const ASCHeader = "# X Y Z Range Azimuth Elevation"

// WriteASC writes one "X Y Z Range Azimuth Elevation" line per echo, in
// meters and radians, readable by CloudCompare's ASCII importer.
func WriteASC(w io.Writer, cloud sonar.PointCloud) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, ASCHeader); err != nil {
		return err
	}
	for _, p := range cloud.Annotated() {
		if _, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f %.6f %.6f\n",
			p.X, p.Y, p.Z, p.Range, p.Azimuth, p.Elevation); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ASCSink exports a cloud to Path. On the OS filesystem the path must lie
// under the temp or working directory.
type ASCSink struct {
	Path string
	FS   fsutil.FileSystem
}

// Consume writes cloud to s.Path.
func (s *ASCSink) Consume(ctx context.Context, cloud sonar.PointCloud) error {
	if len(cloud.Points) == 0 {
		return sonar.ErrNoData
	}
	if s.Path == "" {
		return fmt.Errorf("asc sink: no output path")
	}
	fs := filesystem(s.FS)
	if err := checkExportPath(fs, s.Path); err != nil {
		return fmt.Errorf("asc sink: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeFile(fs, s.Path, func(w io.Writer) error {
		return WriteASC(w, cloud)
	}); err != nil {
		return fmt.Errorf("asc sink: %w", err)
	}
	monitoring.Logf("Exported %d points to %s", len(cloud.Points), s.Path)
	return nil
}
