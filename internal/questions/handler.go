package questions

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askroom/backend/internal/middleware"
	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/realtime"
	"github.com/askroom/backend/internal/rooms"
	"github.com/askroom/backend/pkg/response"
)

// CreateRequest is the body for POST /rooms/:code/questions.
type CreateRequest struct {
	Content string `json:"content" binding:"required"`
}

// Store is the question persistence surface the handlers need.
type Store interface {
	Create(ctx context.Context, q *models.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Question, error)
	MarkAnswered(ctx context.Context, id uuid.UUID) error
	Highlight(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoomGetter resolves join codes to rooms.
type RoomGetter interface {
	GetByCode(ctx context.Context, code string) (*models.Room, error)
}

// Handler handles question HTTP endpoints and snapshot broadcasts.
type Handler struct {
	store  Store
	rooms  RoomGetter
	hub    rooms.Broadcaster
	logger *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(store Store, roomStore RoomGetter, hub rooms.Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, rooms: roomStore, hub: hub, logger: logger}
}

// Create handles POST /rooms/:code/questions (participant asks a question).
// The author identity is snapshotted from the verified token, so submissions
// are never anonymous. Blank content performs no store write.
func (h *Handler) Create(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	if room.Ended() {
		response.Gone(c, "room already ended")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		response.BadRequest(c, "question content is required")
		return
	}

	q := &models.Question{
		RoomID:  room.ID,
		Content: content,
		Author: models.Author{
			Name:   c.MustGet(middleware.ContextUserName).(string),
			Avatar: c.GetString(middleware.ContextUserAvatar),
		},
	}
	if err := h.store.Create(c.Request.Context(), q); err != nil {
		h.logger.Error("create question", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, "failed to create question")
		return
	}

	h.broadcastState(c.Request.Context(), room)
	response.Created(c, q)
}

// Answer handles PATCH /rooms/:code/questions/:id/answer (moderator marks a
// question as answered). Idempotent.
func (h *Handler) Answer(c *gin.Context) {
	h.moderate(c, "failed to mark question answered", h.store.MarkAnswered)
}

// Highlight handles PATCH /rooms/:code/questions/:id/highlight (moderator
// highlights a question). Idempotent; there is no un-highlight.
func (h *Handler) Highlight(c *gin.Context) {
	h.moderate(c, "failed to highlight question", h.store.Highlight)
}

// Delete handles DELETE /rooms/:code/questions/:id (moderator removes a
// question). Confirmation happens client-side before this call.
func (h *Handler) Delete(c *gin.Context) {
	room, q, ok := h.moderated(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), q.ID); err != nil {
		h.logger.Error("delete question", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, "failed to delete question")
		return
	}
	h.broadcastState(c.Request.Context(), room)
	response.NoContent(c)
}

// moderate runs a flag mutation (answer/highlight) under the moderation checks
// and broadcasts the refreshed snapshot.
func (h *Handler) moderate(c *gin.Context, failMsg string, op func(ctx context.Context, id uuid.UUID) error) {
	room, q, ok := h.moderated(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), q.ID); err != nil {
		h.logger.Error("moderate question", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, failMsg)
		return
	}
	h.broadcastState(c.Request.Context(), room)
	updated, err := h.store.GetByID(c.Request.Context(), q.ID)
	if err != nil {
		updated = q
	}
	response.OK(c, updated)
}

// moderated resolves the room and question from the path and enforces that the
// caller may moderate and that the question belongs to this room.
func (h *Handler) moderated(c *gin.Context) (*models.Room, *models.Question, bool) {
	room, ok := h.room(c)
	if !ok {
		return nil, nil, false
	}
	if !rooms.CanModerate(c, room) {
		response.Forbidden(c, "only the room creator can moderate questions")
		return nil, nil, false
	}
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return nil, nil, false
	}
	q, err := h.store.GetByID(c.Request.Context(), questionID)
	if err != nil || q.RoomID != room.ID {
		response.NotFound(c, "question not found")
		return nil, nil, false
	}
	return room, q, true
}

func (h *Handler) room(c *gin.Context) (*models.Room, bool) {
	code := strings.TrimSpace(c.Param("code"))
	room, err := h.rooms.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.NotFound(c, "room not found")
		return nil, false
	}
	return room, true
}

// broadcastState pushes a fresh full snapshot to the room channel. Failures
// are logged and never fail the originating request.
func (h *Handler) broadcastState(ctx context.Context, room *models.Room) {
	list, err := h.store.ListByRoom(ctx, room.ID)
	if err != nil {
		h.logger.Warn("snapshot questions", zap.String("room", room.Code), zap.Error(err))
		list = nil
	}
	h.hub.PublishToRoomOnly(room.Code, realtime.EventRoomState, rooms.Snapshot(room, list))
}
