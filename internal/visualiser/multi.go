package visualiser

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/echomap/internal/sonar"
)

// MultiSink hands the same cloud to every sink in order. All sinks run even
// when one fails; the failures are joined.
type MultiSink []sonar.PointCloudSink

// Consume implements sonar.PointCloudSink.
func (m MultiSink) Consume(ctx context.Context, cloud sonar.PointCloud) error {
	if len(cloud.Points) == 0 {
		return sonar.ErrNoData
	}
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Consume(ctx, cloud); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
