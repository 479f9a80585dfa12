package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/askroom/backend/internal/middleware"
	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/realtime"
	"github.com/askroom/backend/pkg/queue"
	"github.com/askroom/backend/pkg/response"
	"github.com/askroom/backend/pkg/storage"
)

// createRetries bounds join-code regeneration on insert conflicts.
const createRetries = 3

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Title string `json:"title" binding:"required"`
}

// Broadcaster fans a room event out to all subscribers of a room.
type Broadcaster interface {
	PublishToRoomOnly(roomCode, event string, payload interface{})
}

// Archiver enqueues transcript archive jobs for ended rooms.
type Archiver interface {
	EnqueueRoomArchive(ctx context.Context, payload queue.RoomArchivePayload) error
}

// ArchiveStorage presigns transcript downloads from object storage.
type ArchiveStorage interface {
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	ArchivesBucket() string
	PresignExpire() time.Duration
}

// Handler handles room HTTP endpoints.
type Handler struct {
	store     Store
	questions QuestionLister
	hub       Broadcaster
	jobs      Archiver
	archives  ArchiveStorage
	logger    *zap.Logger
}

// NewHandler creates a rooms handler. jobs and archives may be nil when
// archiving is disabled.
func NewHandler(store Store, questions QuestionLister, hub Broadcaster, jobs Archiver, archives ArchiveStorage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, questions: questions, hub: hub, jobs: jobs, archives: archives, logger: logger}
}

// Create handles POST /rooms. The caller becomes the room's moderator.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		response.BadRequest(c, "room title is required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	room := &models.Room{Title: title, CreatedBy: userID}
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		room.Code = NewCode()
		err = h.store.Create(c.Request.Context(), room)
		// Regenerate only on a join-code collision; any other store error
		// would fail every attempt the same way.
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		h.logger.Error("create room", zap.Error(err))
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, room)
}

// Join handles GET /rooms/:code/join, the one-shot existence check performed
// before entering a room. A room ended after this check can still be entered
// momentarily; the live snapshot corrects that.
func (h *Handler) Join(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	room, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	if room.Ended() {
		response.Gone(c, "room already ended")
		return
	}
	response.OK(c, room)
}

// Get handles GET /rooms/:code, returning the room with its question list for
// the initial render.
func (h *Handler) Get(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	room, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	list, err := h.questions.ListByRoom(c.Request.Context(), room.ID)
	if err != nil {
		h.logger.Error("list questions", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, "failed to load room")
		return
	}
	response.OK(c, Snapshot(room, list))
}

// List handles GET /rooms?mine=1, the creator's room dashboard.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list rooms")
		return
	}
	response.OK(c, gin.H{"rooms": list})
}

// End handles POST /rooms/:code/end (moderator only). Sets the end timestamp,
// pushes a final snapshot, and enqueues the transcript archive job.
func (h *Handler) End(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	room, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	if !CanModerate(c, room) {
		response.Forbidden(c, "only the room creator can end the room")
		return
	}

	endedAt := time.Now().UTC()
	if err := h.store.End(c.Request.Context(), room.ID, endedAt); err != nil {
		h.logger.Error("end room", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, "failed to end room")
		return
	}
	room.EndedAt = &endedAt

	h.broadcastState(c.Request.Context(), room)

	if h.jobs != nil {
		payload := queue.RoomArchivePayload{RoomID: room.ID, RoomCode: room.Code}
		if err := h.jobs.EnqueueRoomArchive(c.Request.Context(), payload); err != nil {
			h.logger.Warn("enqueue archive", zap.String("room", room.Code), zap.Error(err))
		}
	}
	response.OK(c, room)
}

// broadcastState pushes a fresh full snapshot to the room channel. Failures
// are logged and never fail the originating request.
func (h *Handler) broadcastState(ctx context.Context, room *models.Room) {
	list, err := h.questions.ListByRoom(ctx, room.ID)
	if err != nil {
		h.logger.Warn("snapshot questions", zap.String("room", room.Code), zap.Error(err))
		list = nil
	}
	h.hub.PublishToRoomOnly(room.Code, realtime.EventRoomState, Snapshot(room, list))
}

// Archive handles GET /rooms/:code/archive (moderator only), returning a
// pre-signed download URL for the room transcript once the worker has
// uploaded it.
func (h *Handler) Archive(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	room, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	if !CanModerate(c, room) {
		response.Forbidden(c, "only the room creator can download the transcript")
		return
	}
	if h.archives == nil || room.ArchiveURL == nil {
		response.NotFound(c, "transcript not available")
		return
	}

	expires := h.archives.PresignExpire()
	url, err := h.archives.GeneratePresignedDownloadURL(
		c.Request.Context(), h.archives.ArchivesBucket(), storage.ArchiveKey(room.Code), expires)
	if err != nil {
		h.logger.Error("presign transcript", zap.String("room", room.Code), zap.Error(err))
		response.Internal(c, "failed to generate download link")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(expires.Seconds())})
}

// ListAll handles GET /admin/rooms, the platform-wide room listing.
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list rooms")
		return
	}
	response.OK(c, gin.H{"rooms": list})
}

// CanModerate reports whether the signed-in user may moderate the room: its
// creator, or a platform admin. Shared with the question moderation endpoints.
func CanModerate(c *gin.Context, room *models.Room) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	return room.CreatedBy == userID || role == string(models.RoleAdmin)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (duplicate join code on insert).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
