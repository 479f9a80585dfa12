package questions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askroom/backend/internal/models"
)

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new question with both flags unset.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (id, room_id, author_name, author_avatar, content, is_answered, is_highlighted)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, FALSE, FALSE)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, q.RoomID, q.Author.Name, q.Author.Avatar, q.Content).
		Scan(&q.ID, &q.CreatedAt)
}

// GetByID returns a question by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	const query = `SELECT id, room_id, author_name, author_avatar, content, is_answered, is_highlighted, created_at
		FROM questions WHERE id = $1`
	var q models.Question
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&q.ID, &q.RoomID, &q.Author.Name, &q.Author.Avatar, &q.Content, &q.IsAnswered, &q.IsHighlighted, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListByRoom returns a room's questions in insertion order.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error) {
	const query = `SELECT id, room_id, author_name, author_avatar, content, is_answered, is_highlighted, created_at
		FROM questions WHERE room_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.RoomID, &q.Author.Name, &q.Author.Avatar, &q.Content, &q.IsAnswered, &q.IsHighlighted, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// MarkAnswered sets is_answered. Re-marking an answered question is a no-op write.
func (r *Repository) MarkAnswered(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE questions SET is_answered = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Highlight sets is_highlighted. There is no un-highlight.
func (r *Repository) Highlight(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE questions SET is_highlighted = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Delete removes a question. Deleting an absent row is harmless.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM questions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
