package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askroom/backend/internal/models"
)

// Repository handles room persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, code, title, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, room.Code, room.Title, room.CreatedBy).
		Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

// GetByCode returns a room by its join code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	const q = `SELECT id, code, title, created_by, ended_at, archive_url, created_at, updated_at
		FROM rooms WHERE code = $1`
	var room models.Room
	err := r.pool.QueryRow(ctx, q, code).
		Scan(&room.ID, &room.Code, &room.Title, &room.CreatedBy, &room.EndedAt, &room.ArchiveURL, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetByID returns a room by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const q = `SELECT id, code, title, created_by, ended_at, archive_url, created_at, updated_at
		FROM rooms WHERE id = $1`
	var room models.Room
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&room.ID, &room.Code, &room.Title, &room.CreatedBy, &room.EndedAt, &room.ArchiveURL, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByCreator returns rooms created by a user, newest first.
func (r *Repository) ListByCreator(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	const q = `SELECT id, code, title, created_by, ended_at, archive_url, created_at, updated_at
		FROM rooms WHERE created_by = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Code, &room.Title, &room.CreatedBy, &room.EndedAt, &room.ArchiveURL, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// ListAll returns every room, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]models.Room, error) {
	const q = `SELECT id, code, title, created_by, ended_at, archive_url, created_at, updated_at
		FROM rooms ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Code, &room.Title, &room.CreatedBy, &room.EndedAt, &room.ArchiveURL, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// End sets the room's end timestamp. Ending an already-ended room overwrites
// the timestamp, which is harmless.
func (r *Repository) End(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	const q = `UPDATE rooms SET ended_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, endedAt, id)
	return err
}

// SetArchiveURL records the S3 transcript location after archiving.
func (r *Repository) SetArchiveURL(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE rooms SET archive_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, url, id)
	return err
}
