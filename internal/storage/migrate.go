// ABOUTME: Data migration between trip storage backends
// ABOUTME: Copies recordings with their pauses and points from source to destination store

package storage

import (
	"context"
	"fmt"
	"os"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Recordings int
	Pauses     int
	Points     int
}

// MigrateData copies all data from src to dst storage.
// Each recording is imported in one destination transaction together with
// its points, so point IDs and totals survive unchanged. The destination
// should be empty before calling this function.
func MigrateData(ctx context.Context, src, dst TripStore) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	recs, err := src.ListRecordings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source recordings: %w", err)
	}

	// Oldest first so the destination's creation order matches the source.
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		points, err := src.Points(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("get points for recording %q: %w", rec.Name, err)
		}
		if err := dst.ImportRecording(ctx, rec, points); err != nil {
			return nil, fmt.Errorf("import recording %q: %w", rec.Name, err)
		}
		summary.Recordings++
		summary.Pauses += len(rec.Pauses)
		summary.Points += len(points)
	}

	return summary, nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
