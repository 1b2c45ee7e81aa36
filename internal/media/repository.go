package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linguaclip/backend/internal/models"
)

// Repository handles media item persistence. Transcript segments are
// stored as a JSONB column owned exclusively by the item.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a media repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const mediaColumns = `id, owner_id, title, COALESCE(description,''), COALESCE(source_url,''),
	COALESCE(file_path,''), COALESCE(s3_key,''), COALESCE(language,''),
	transcription_status, COALESCE(transcription_language,''), COALESCE(transcription_error,''),
	segments, transcribed_at, created_at, updated_at`

func scanItem(row pgx.Row) (*models.MediaItem, error) {
	var item models.MediaItem
	var segments []byte
	err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.SourceURL,
		&item.FilePath, &item.S3Key, &item.Language,
		&item.TranscriptionStatus, &item.TranscriptionLang, &item.TranscriptionError,
		&segments, &item.TranscribedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &item.Segments); err != nil {
			return nil, fmt.Errorf("decode segments: %w", err)
		}
	}
	return &item, nil
}

// Create inserts a new media item with status pending.
func (r *Repository) Create(ctx context.Context, item *models.MediaItem) error {
	const q = `INSERT INTO media_items (id, owner_id, title, description, source_url, file_path, language, transcription_status)
		VALUES (gen_random_uuid(), $1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, item.OwnerID, item.Title, item.Description, item.SourceURL,
		item.FilePath, item.Language, models.TranscriptionStatusPending).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
}

// GetByID returns a media item by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_items WHERE id = $1`
	return scanItem(r.pool.QueryRow(ctx, q, id))
}

// ListByOwner returns all media items for a user, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.MediaItem, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_items WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MediaItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *item)
	}
	return list, rows.Err()
}

// ListByStatus returns items across all owners filtered by transcription
// status, newest first. An empty status returns everything.
func (r *Repository) ListByStatus(ctx context.Context, status string) ([]models.MediaItem, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_items
		WHERE ($1 = '' OR transcription_status = $1) ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MediaItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *item)
	}
	return list, rows.Err()
}

// Delete removes a media item.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM media_items WHERE id = $1`, id)
	return err
}

// UpdateS3Key records the archive object key after an upload to S3.
func (r *Repository) UpdateS3Key(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE media_items SET s3_key = $1, updated_at = NOW() WHERE id = $2`, key, id)
	return err
}

// ClaimForTranscription atomically transitions an item to processing.
// The guard makes the claim a compare-and-swap: a concurrent duplicate
// submission for the same item loses the race and gets false.
func (r *Repository) ClaimForTranscription(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE media_items
		SET transcription_status = $1, transcription_error = NULL, updated_at = NOW()
		WHERE id = $2 AND transcription_status <> $1`
	tag, err := r.pool.Exec(ctx, q, models.TranscriptionStatusProcessing, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTranscription writes segments, detected language, completion
// time and the completed status in a single statement, so a retrigger
// never mixes old and new segments.
func (r *Repository) CompleteTranscription(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, language string, at time.Time) error {
	if segments == nil {
		segments = []models.TranscriptSegment{}
	}
	body, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	const q = `UPDATE media_items
		SET segments = $1, transcription_language = NULLIF($2,''), transcribed_at = $3,
		    transcription_status = $4, transcription_error = NULL, updated_at = NOW()
		WHERE id = $5`
	_, err = r.pool.Exec(ctx, q, body, language, at, models.TranscriptionStatusCompleted, id)
	return err
}

// FailTranscription marks the item failed, keeping any previously stored
// segments intact.
func (r *Repository) FailTranscription(ctx context.Context, id uuid.UUID, message string) error {
	const q = `UPDATE media_items
		SET transcription_status = $1, transcription_error = $2, updated_at = NOW()
		WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.TranscriptionStatusFailed, message, id)
	return err
}

// ResetForRetry moves a terminal item back to pending ahead of an explicit
// retrigger. Returns false when the item is not in a terminal status.
func (r *Repository) ResetForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE media_items
		SET transcription_status = $1, transcription_error = NULL, updated_at = NOW()
		WHERE id = $2 AND transcription_status IN ($3, $4)`
	tag, err := r.pool.Exec(ctx, q, models.TranscriptionStatusPending, id,
		models.TranscriptionStatusCompleted, models.TranscriptionStatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
