// ABOUTME: Repository interfaces for trip storage
// ABOUTME: Enables testability and swapping between SQLite and Badger backends

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
)

// RecordingRepository defines operations on recordings and their pauses.
// Every operation is a single transaction.
type RecordingRepository interface {
	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListRecordings(ctx context.Context) ([]*models.Recording, error)
	DeleteRecording(ctx context.Context, id uuid.UUID) error
	OpenPause(ctx context.Context, id uuid.UUID, now time.Time) error
	ClosePause(ctx context.Context, id uuid.UUID, now time.Time) error
	FinishRecording(ctx context.Context, id uuid.UUID, now time.Time) (*models.Recording, error)
}

// PointRepository defines read access to points and the batch used to
// append them.
type PointRepository interface {
	Points(ctx context.Context, recordingID uuid.UUID) ([]*models.Point, error)
	LatestPoint(ctx context.Context, recordingID uuid.UUID) (*models.Point, error)
	LatestPointBefore(ctx context.Context, recordingID uuid.UUID, t time.Time) (*models.Point, error)
	Begin(ctx context.Context) (PointBatch, error)
}

// PointBatch is an open write transaction for appending points. Reads made
// through the batch observe its own uncommitted appends. A batch must end
// with exactly one Commit or Rollback.
type PointBatch interface {
	LatestPointBefore(recordingID uuid.UUID, t time.Time) (*models.Point, error)
	AppendPoint(recordingID uuid.UUID, fix models.Fix, heading *models.Heading, distance float64, segmentID int) (*models.Point, error)
	Commit() error
	Rollback() error
}

// TripStore combines all storage operations with lifecycle management.
type TripStore interface {
	RecordingRepository
	PointRepository
	ImportRecording(ctx context.Context, rec *models.Recording, points []*models.Point) error
	CheckConsistency(ctx context.Context) ([]Violation, error)
	Close() error
}
