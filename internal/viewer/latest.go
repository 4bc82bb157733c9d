package viewer

import (
	"context"
	"fmt"

	"github.com/lox/hazardmap/internal/models"
)

// StatisticsSource is the part of the backend needed to summarise the newest forecast.
type StatisticsSource interface {
	Files(ctx context.Context) (map[string]models.FileInfo, error)
	Statistics(ctx context.Context, tif string) (*models.Statistics, error)
}

// LatestStatistics fetches statistics for the most recent forecast date.
// An empty date means the backend publishes no files.
func LatestStatistics(ctx context.Context, src StatisticsSource) (string, *models.Statistics, error) {
	files, err := src.Files(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("files: %w", err)
	}
	reg := NewRegistry(files)
	date, ok := reg.Latest()
	if !ok {
		return "", nil, nil
	}
	stats, err := src.Statistics(ctx, ActiveRasterFile(reg, date))
	if err != nil {
		return date, nil, fmt.Errorf("statistics for %s: %w", date, err)
	}
	return date, stats, nil
}
