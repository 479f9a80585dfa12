package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askroom/backend/internal/models"
	"github.com/askroom/backend/internal/rooms"
	"github.com/askroom/backend/pkg/queue"
	"github.com/askroom/backend/pkg/storage"
)

// RoomStore is the room persistence surface the archiver needs.
type RoomStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	SetArchiveURL(ctx context.Context, id uuid.UUID, url string) error
}

// ArchiveProcessor processes room archive jobs: render the transcript as JSON,
// upload to S3, record the object URL on the room.
type ArchiveProcessor struct {
	roomStore RoomStore
	questions rooms.QuestionLister
	s3        *storage.S3
	queue     *queue.Queue
	logger    *zap.Logger
}

// transcript is the archived room document.
type transcript struct {
	Room       *models.RoomSnapshot `json:"room"`
	ArchivedAt time.Time            `json:"archived_at"`
}

// NewArchiveProcessor creates a room archive processor.
func NewArchiveProcessor(roomStore RoomStore, questions rooms.QuestionLister, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{roomStore: roomStore, questions: questions, s3: s3, queue: q, logger: logger}
}

// Process executes one room archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRoomArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RoomArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	room, err := p.roomStore.GetByID(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("room not found: %s", payload.RoomID)
	}
	if room.ArchiveURL != nil {
		p.logger.Info("room already archived", zap.String("room", room.Code))
		return nil
	}

	list, err := p.questions.ListByRoom(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	doc, err := json.Marshal(transcript{Room: rooms.Snapshot(room, list), ArchivedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	key := storage.ArchiveKey(room.Code)
	url, err := p.s3.Upload(ctx, p.s3.ArchivesBucket(), key, "application/json", bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.roomStore.SetArchiveURL(ctx, room.ID, url); err != nil {
		p.logger.Error("record archive url failed", zap.Error(err), zap.String("room", room.Code))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("room archived", zap.String("room", room.Code), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
