package rooms

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askroom/backend/internal/models"
)

type fakeRoomStore struct {
	byCode map[string]*models.Room
	ended  map[uuid.UUID]time.Time
}

func newFakeRoomStore(rs ...*models.Room) *fakeRoomStore {
	s := &fakeRoomStore{byCode: make(map[string]*models.Room), ended: make(map[uuid.UUID]time.Time)}
	for _, r := range rs {
		s.byCode[r.Code] = r
	}
	return s
}

func (s *fakeRoomStore) Create(_ context.Context, room *models.Room) error {
	if _, exists := s.byCode[room.Code]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "rooms_code_key"}
	}
	room.ID = uuid.New()
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt
	s.byCode[room.Code] = room
	return nil
}

func (s *fakeRoomStore) GetByCode(_ context.Context, code string) (*models.Room, error) {
	room, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	return room, nil
}

func (s *fakeRoomStore) ListByCreator(_ context.Context, userID uuid.UUID) ([]models.Room, error) {
	var list []models.Room
	for _, r := range s.byCode {
		if r.CreatedBy == userID {
			list = append(list, *r)
		}
	}
	return list, nil
}

func (s *fakeRoomStore) ListAll(_ context.Context) ([]models.Room, error) {
	var list []models.Room
	for _, r := range s.byCode {
		list = append(list, *r)
	}
	return list, nil
}

func (s *fakeRoomStore) End(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	s.ended[id] = endedAt
	for _, r := range s.byCode {
		if r.ID == id {
			t := endedAt
			r.EndedAt = &t
		}
	}
	return nil
}

type fakeQuestionLister struct {
	byRoom map[uuid.UUID][]models.Question
	err    error
}

func (l *fakeQuestionLister) ListByRoom(_ context.Context, roomID uuid.UUID) ([]models.Question, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.byRoom[roomID], nil
}

func makeQuestions(roomID uuid.UUID, n int) []models.Question {
	base := time.Now()
	qs := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, models.Question{
			ID:        uuid.New(),
			RoomID:    roomID,
			Author:    models.Author{Name: fmt.Sprintf("user-%d", i)},
			Content:   fmt.Sprintf("question %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return qs
}

func TestSnapshotPreservesCountAndOrder(t *testing.T) {
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Office hours"}
	for _, n := range []int{0, 1, 7} {
		qs := makeQuestions(room.ID, n)
		snap := Snapshot(room, qs)

		require.Len(t, snap.Questions, n)
		for i, q := range snap.Questions {
			assert.Equal(t, qs[i].ID, q.ID, "question %d out of order", i)
		}
		assert.Equal(t, room.Code, snap.ID)
		assert.Equal(t, room.Title, snap.Title)
	}
}

func TestSnapshotNilQuestionsBecomesEmpty(t *testing.T) {
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Office hours"}
	snap := Snapshot(room, nil)
	require.NotNil(t, snap.Questions)
	assert.Empty(t, snap.Questions)
}

func TestSnapshotCarriesEndedAt(t *testing.T) {
	endedAt := time.Now()
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Done", EndedAt: &endedAt}
	snap := Snapshot(room, nil)
	require.NotNil(t, snap.EndedAt)
	assert.Equal(t, endedAt, *snap.EndedAt)
}

func TestSnapshotProviderMissingRoomYieldsEmpty(t *testing.T) {
	provider := NewSnapshotProvider(newFakeRoomStore(), &fakeQuestionLister{})

	snap, err := provider(context.Background(), "nosuch")
	require.NoError(t, err, "missing room must not fail the subscriber")
	assert.Equal(t, "nosuch", snap.ID)
	assert.Empty(t, snap.Questions)
}

func TestSnapshotProviderListFailureDegradesToEmpty(t *testing.T) {
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Office hours"}
	lister := &fakeQuestionLister{err: fmt.Errorf("boom")}
	provider := NewSnapshotProvider(newFakeRoomStore(room), lister)

	snap, err := provider(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", snap.ID)
	assert.Empty(t, snap.Questions)
}

func TestSnapshotProviderOrdersQuestions(t *testing.T) {
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Office hours"}
	qs := makeQuestions(room.ID, 5)
	lister := &fakeQuestionLister{byRoom: map[uuid.UUID][]models.Question{room.ID: qs}}
	provider := NewSnapshotProvider(newFakeRoomStore(room), lister)

	snap, err := provider(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, snap.Questions, 5)
	for i := range qs {
		assert.Equal(t, qs[i].ID, snap.Questions[i].ID)
	}
}
