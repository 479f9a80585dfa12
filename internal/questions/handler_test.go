package questions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askroom/backend/internal/middleware"
	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/realtime"
)

type fakeStore struct {
	byID        map[uuid.UUID]*models.Question
	order       []uuid.UUID
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[uuid.UUID]*models.Question)}
}

func (s *fakeStore) Create(_ context.Context, q *models.Question) error {
	s.createCalls++
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	clone := *q
	s.byID[q.ID] = &clone
	s.order = append(s.order, q.ID)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Question, error) {
	q, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	clone := *q
	return &clone, nil
}

func (s *fakeStore) ListByRoom(_ context.Context, roomID uuid.UUID) ([]models.Question, error) {
	var list []models.Question
	for _, id := range s.order {
		if q, ok := s.byID[id]; ok && q.RoomID == roomID {
			list = append(list, *q)
		}
	}
	return list, nil
}

func (s *fakeStore) MarkAnswered(_ context.Context, id uuid.UUID) error {
	if q, ok := s.byID[id]; ok {
		q.IsAnswered = true
	}
	return nil
}

func (s *fakeStore) Highlight(_ context.Context, id uuid.UUID) error {
	if q, ok := s.byID[id]; ok {
		q.IsHighlighted = true
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.byID, id)
	return nil
}

func (s *fakeStore) add(roomID uuid.UUID, content string, answered bool) *models.Question {
	q := &models.Question{
		ID:         uuid.New(),
		RoomID:     roomID,
		Author:     models.Author{Name: "ana"},
		Content:    content,
		IsAnswered: answered,
		CreatedAt:  time.Now(),
	}
	s.byID[q.ID] = q
	s.order = append(s.order, q.ID)
	return q
}

type fakeRoomGetter struct {
	rooms map[string]*models.Room
}

func (g *fakeRoomGetter) GetByCode(_ context.Context, code string) (*models.Room, error) {
	room, ok := g.rooms[code]
	if !ok {
		return nil, fmt.Errorf("no rows in result set")
	}
	return room, nil
}

type broadcastEvent struct {
	Room    string
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	events []broadcastEvent
}

func (b *fakeBroadcaster) PublishToRoomOnly(roomCode, event string, payload interface{}) {
	b.events = append(b.events, broadcastEvent{Room: roomCode, Event: event, Payload: payload})
}

func (b *fakeBroadcaster) lastSnapshot(t *testing.T) *models.RoomSnapshot {
	t.Helper()
	require.NotEmpty(t, b.events)
	last := b.events[len(b.events)-1]
	require.Equal(t, realtime.EventRoomState, last.Event)
	snap, ok := last.Payload.(*models.RoomSnapshot)
	require.True(t, ok, "room_state payload must be a snapshot")
	return snap
}

type fixture struct {
	handler *Handler
	store   *fakeStore
	hub     *fakeBroadcaster
	room    *models.Room
	creator uuid.UUID
}

func newFixture() *fixture {
	creator := uuid.New()
	room := &models.Room{ID: uuid.New(), Code: "abc123", Title: "Office hours", CreatedBy: creator}
	store := newFakeStore()
	hub := &fakeBroadcaster{}
	getter := &fakeRoomGetter{rooms: map[string]*models.Room{room.Code: room}}
	return &fixture{
		handler: NewHandler(store, getter, hub, zap.NewNop()),
		store:   store,
		hub:     hub,
		room:    room,
		creator: creator,
	}
}

func testCtx(t *testing.T, method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, "/", rdr)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func asUser(c *gin.Context, id uuid.UUID, name string, role models.Role) {
	c.Set(middleware.ContextUserID, id)
	c.Set(middleware.ContextUserName, name)
	c.Set(middleware.ContextUserAvatar, "https://example.com/"+name+".png")
	c.Set(middleware.ContextUserRole, string(role))
}

func roomParams(code string, extra ...gin.Param) gin.Params {
	params := gin.Params{{Key: "code", Value: code}}
	return append(params, extra...)
}

func TestSubmitQuestion(t *testing.T) {
	f := newFixture()

	c, w := testCtx(t, http.MethodPost, `{"content":"Why is the sky blue?"}`)
	c.Params = roomParams("abc123")
	asUser(c, uuid.New(), "ana", models.RoleMember)
	f.handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 1, f.store.createCalls)

	snap := f.hub.lastSnapshot(t)
	require.Len(t, snap.Questions, 1)
	q := snap.Questions[0]
	assert.Equal(t, "Why is the sky blue?", q.Content)
	assert.Equal(t, "ana", q.Author.Name)
	assert.Equal(t, "https://example.com/ana.png", q.Author.Avatar)
	assert.False(t, q.IsAnswered)
	assert.False(t, q.IsHighlighted)
}

func TestSubmitQuestionBlankContentWritesNothing(t *testing.T) {
	f := newFixture()

	for _, body := range []string{`{"content":""}`, `{"content":"   "}`, `{"content":"\n\t "}`} {
		c, w := testCtx(t, http.MethodPost, body)
		c.Params = roomParams("abc123")
		asUser(c, uuid.New(), "ana", models.RoleMember)
		f.handler.Create(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Zero(t, f.store.createCalls, "blank content must not reach the store")
	assert.Empty(t, f.hub.events)
}

func TestSubmitQuestionToEndedRoom(t *testing.T) {
	f := newFixture()
	endedAt := time.Now()
	f.room.EndedAt = &endedAt

	c, w := testCtx(t, http.MethodPost, `{"content":"Too late?"}`)
	c.Params = roomParams("abc123")
	asUser(c, uuid.New(), "ana", models.RoleMember)
	f.handler.Create(c)

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Zero(t, f.store.createCalls)
}

func TestSubmitQuestionUnknownRoom(t *testing.T) {
	f := newFixture()

	c, w := testCtx(t, http.MethodPost, `{"content":"Anyone here?"}`)
	c.Params = roomParams("nosuch")
	asUser(c, uuid.New(), "ana", models.RoleMember)
	f.handler.Create(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, f.store.createCalls)
}

func TestMarkAnsweredIsIdempotent(t *testing.T) {
	f := newFixture()
	q := f.store.add(f.room.ID, "Why?", false)

	var snapshots []*models.RoomSnapshot
	for i := 0; i < 2; i++ {
		c, w := testCtx(t, http.MethodPatch, "")
		c.Params = roomParams("abc123", gin.Param{Key: "id", Value: q.ID.String()})
		asUser(c, f.creator, "ana", models.RoleMember)
		f.handler.Answer(c)

		require.Equal(t, http.StatusOK, w.Code, "attempt %d", i)
		snapshots = append(snapshots, f.hub.lastSnapshot(t))
	}

	require.Len(t, snapshots, 2)
	assert.Equal(t, snapshots[0].Questions, snapshots[1].Questions, "second mark-answered must be observably identical")
	assert.True(t, f.store.byID[q.ID].IsAnswered)
}

func TestHighlightLeavesAnsweredUntouched(t *testing.T) {
	f := newFixture()
	q := f.store.add(f.room.ID, "Why?", false)

	c, w := testCtx(t, http.MethodPatch, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: q.ID.String()})
	asUser(c, f.creator, "ana", models.RoleMember)
	f.handler.Highlight(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.store.byID[q.ID].IsHighlighted)
	assert.False(t, f.store.byID[q.ID].IsAnswered, "flags are independent")
}

func TestDeleteQuestionRemovesExactlyThatID(t *testing.T) {
	f := newFixture()
	q1 := f.store.add(f.room.ID, "Why?", false)
	q2 := f.store.add(f.room.ID, "How?", true)

	c, w := testCtx(t, http.MethodDelete, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: q1.ID.String()})
	asUser(c, f.creator, "ana", models.RoleMember)
	f.handler.Delete(c)
	// gin's CreateTestContext defers status-only header writes; flush so the
	// recorder observes the code the handler set.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	snap := f.hub.lastSnapshot(t)
	require.Len(t, snap.Questions, 1)
	assert.Equal(t, q2.ID, snap.Questions[0].ID)
}

func TestDeleteUnknownQuestion(t *testing.T) {
	f := newFixture()

	c, w := testCtx(t, http.MethodDelete, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: uuid.New().String()})
	asUser(c, f.creator, "ana", models.RoleMember)
	f.handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.hub.events)
}

func TestModerationForbiddenForNonCreator(t *testing.T) {
	f := newFixture()
	q := f.store.add(f.room.ID, "Why?", false)

	c, w := testCtx(t, http.MethodPatch, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: q.ID.String()})
	asUser(c, uuid.New(), "mallory", models.RoleMember)
	f.handler.Answer(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, f.store.byID[q.ID].IsAnswered)
}

func TestQuestionFromAnotherRoomIsNotFound(t *testing.T) {
	f := newFixture()
	other := f.store.add(uuid.New(), "Wrong room", false)

	c, w := testCtx(t, http.MethodDelete, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: other.ID.String()})
	asUser(c, f.creator, "ana", models.RoleMember)
	f.handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, f.store.byID, other.ID, "question in another room must survive")
}

// Mirrors the moderator flow end to end: two questions, one already answered,
// mark the other answered, and the refreshed snapshot reflects both.
func TestModeratorFlow(t *testing.T) {
	f := newFixture()
	q1 := f.store.add(f.room.ID, "Why?", false)
	q2 := f.store.add(f.room.ID, "How?", true)

	list, err := f.store.ListByRoom(context.Background(), f.room.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	c, w := testCtx(t, http.MethodPatch, "")
	c.Params = roomParams("abc123", gin.Param{Key: "id", Value: q1.ID.String()})
	asUser(c, f.creator, "ana", models.RoleMember)
	f.handler.Answer(c)
	require.Equal(t, http.StatusOK, w.Code)

	snap := f.hub.lastSnapshot(t)
	require.Len(t, snap.Questions, 2)
	for _, q := range snap.Questions {
		assert.True(t, q.IsAnswered, "question %s should be answered", q.ID)
	}
	assert.Equal(t, []uuid.UUID{q1.ID, q2.ID}, []uuid.UUID{snap.Questions[0].ID, snap.Questions[1].ID}, "order preserved")
}
