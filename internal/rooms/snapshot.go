package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/realtime"
)

// Store is the room persistence surface the handlers and snapshot provider need.
type Store interface {
	Create(ctx context.Context, room *models.Room) error
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	ListByCreator(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	ListAll(ctx context.Context) ([]models.Room, error)
	End(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

// QuestionLister lists a room's questions in insertion order.
type QuestionLister interface {
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error)
}

// Snapshot assembles the full room state delivered to subscribers. The
// question order is the lister's order (insertion order) and the slice is
// never nil so consumers always see a complete, well-formed value.
func Snapshot(room *models.Room, questions []models.Question) *models.RoomSnapshot {
	if questions == nil {
		questions = []models.Question{}
	}
	return &models.RoomSnapshot{
		ID:        room.Code,
		Title:     room.Title,
		EndedAt:   room.EndedAt,
		Questions: questions,
	}
}

// NewSnapshotProvider returns the snapshot loader wired into the realtime hub.
// An absent or unreadable room degrades to an empty snapshot rather than an
// error, so a subscriber view never fails to render.
func NewSnapshotProvider(store Store, questions QuestionLister) realtime.SnapshotFunc {
	return func(ctx context.Context, roomCode string) (*models.RoomSnapshot, error) {
		room, err := store.GetByCode(ctx, roomCode)
		if err != nil {
			return &models.RoomSnapshot{ID: roomCode, Questions: []models.Question{}}, nil
		}
		list, err := questions.ListByRoom(ctx, room.ID)
		if err != nil {
			list = nil
		}
		return Snapshot(room, list), nil
	}
}
