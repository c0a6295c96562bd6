package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"minerva-backend/internal/models"
	"minerva-backend/internal/rag"
	"minerva-backend/internal/services"
)

// jobStore and documentStore are the status-tracking surface the pool needs
// from the repositories.
type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error
}

type documentStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, chunkCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// QueueDocumentIngestion is the Redis list the API pushes ingestion jobs to.
const QueueDocumentIngestion = "queue:document-ingestion"

// Enqueue serializes a job onto the ingestion queue.
func Enqueue(ctx context.Context, rdb *redis.Client, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := rdb.RPush(ctx, QueueDocumentIngestion, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Pool consumes document-ingestion jobs: it extracts text from the uploaded
// source, chunks and embeds it into the owner's vector namespace, and streams
// progress to the owner over the per-user pub/sub channel.
type Pool struct {
	queue       *redis.Client
	pubsub      *redis.Client
	engine      *rag.Engine
	youtube     *services.YouTubeService
	files       *services.FileStore
	jobRepo     jobStore
	docRepo     documentStore
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	queue *redis.Client,
	pubsub *redis.Client,
	engine *rag.Engine,
	youtube *services.YouTubeService,
	files *services.FileStore,
	jobRepo jobStore,
	docRepo documentStore,
	workerCount int,
) *Pool {
	return &Pool{
		queue:       queue,
		pubsub:      pubsub,
		engine:      engine,
		youtube:     youtube,
		files:       files,
		jobRepo:     jobRepo,
		docRepo:     docRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d ingestion worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.queue.BLPop(ctx, 30*time.Second, QueueDocumentIngestion).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Lock so a re-delivered job is processed once
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.queue.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: processing ingestion job %s", id, job.ID)

		p.markProcessing(ctx, &job)

		p.publish(ctx, job.UserID, models.WSMessage{
			Type: "status_update",
			Payload: models.StatusUpdate{
				JobID:    job.ID,
				Step:     1,
				StepName: "Extracting text",
			},
		})

		chunkCount, processErr := p.process(ctx, &job)
		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job, chunkCount)
		}

		p.queue.Del(ctx, lockKey)
	}
}

// markProcessing records the pickup on the job and its document. A failed
// update is logged and the job still runs.
func (p *Pool) markProcessing(ctx context.Context, job *models.Job) {
	if err := p.jobRepo.UpdateStatus(ctx, job.ID, "processing"); err != nil {
		log.Printf("WARNING: failed to mark job %s processing: %v", job.ID, err)
	}
	if err := p.docRepo.UpdateStatus(ctx, job.ReferenceID, "processing"); err != nil {
		log.Printf("WARNING: failed to mark document %s processing: %v", job.ReferenceID, err)
	}
}

func (p *Pool) process(ctx context.Context, job *models.Job) (int, error) {
	var cfg models.IngestionJobConfig
	if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
		return 0, fmt.Errorf("invalid job config: %w", err)
	}

	if cfg.VideoID != "" {
		return p.processYouTube(ctx, job, cfg)
	}
	return p.processFile(ctx, job, cfg)
}

func (p *Pool) processFile(ctx context.Context, job *models.Job, cfg models.IngestionJobConfig) (int, error) {
	if cfg.FilePath == "" {
		return 0, fmt.Errorf("file job has no file path")
	}

	data, err := p.files.ReadLocal(cfg.FilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     2,
			StepName: "Indexing document",
		},
	})

	return p.engine.Ingest(ctx, job.UserID, job.ReferenceID, cfg.FileName, data)
}

func (p *Pool) processYouTube(ctx context.Context, job *models.Job, cfg models.IngestionJobConfig) (int, error) {
	transcript, err := p.youtube.GetTranscript(cfg.VideoID)
	if err != nil {
		return 0, fmt.Errorf("transcript extraction failed for video %s: %w", cfg.VideoID, err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     2,
			StepName: "Indexing transcript",
		},
	})

	return p.engine.IngestText(ctx, job.UserID, job.ReferenceID, cfg.FileName, transcript)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, chunkCount int) {
	if err := p.docRepo.MarkCompleted(ctx, job.ReferenceID, chunkCount); err != nil {
		log.Printf("WARNING: failed to mark document %s completed: %v", job.ReferenceID, err)
	}
	if err := p.jobRepo.UpdateStatus(ctx, job.ID, "completed"); err != nil {
		log.Printf("WARNING: failed to mark job %s completed: %v", job.ID, err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: "document",
			ChunkCount: chunkCount,
		},
	})

	log.Printf("✓ Ingestion job %s completed (%d chunks)", job.ID, chunkCount)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, processErr error) {
	log.Printf("WARNING: ingestion job %s failed: %v", job.ID, processErr)

	if err := p.jobRepo.UpdateError(ctx, job.ID, processErr.Error()); err != nil {
		log.Printf("WARNING: failed to record job error: %v", err)
	}
	if err := p.docRepo.MarkFailed(ctx, job.ReferenceID); err != nil {
		log.Printf("WARNING: failed to mark document %s failed: %v", job.ReferenceID, err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "INGESTION_FAILED",
			ErrorMessage: processErr.Error(),
		},
	})
}

func (p *Pool) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	channel := "user_updates:" + userID.String()
	if err := p.pubsub.Publish(ctx, channel, data).Err(); err != nil {
		log.Printf("WARNING: failed to publish update for user %s: %v", userID, err)
	}
}
