package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
	"github.com/lu-zhengda/mailpilot/internal/vector"
)

const (
	defaultBatchSize = 20
	maxConcurrent    = 4
)

// Store is the slice of persistence the embedding service needs.
type Store interface {
	UnprocessedMessages(ctx context.Context, limit int) ([]domain.Message, error)
	UpsertEmbedding(ctx context.Context, e *domain.MessageEmbedding) error
	MarkProcessed(ctx context.Context, id int64, processingError string) error
}

// BatchStats reports the outcome of a batch run.
type BatchStats struct {
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Embeddings int           `json:"embeddings"`
	Duration   time.Duration `json:"duration"`
	Errors     []string      `json:"errors,omitempty"`
}

// Service embeds messages and records the resulting vectors.
type Service struct {
	store      Store
	index      vector.Index
	engine     Engine
	collection string
	batchSize  int
	logger     *zap.Logger

	ensureMu sync.Mutex
	ensured  bool
}

func NewService(st Store, index vector.Index, engine Engine, collection string, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      st,
		index:      index,
		engine:     engine,
		collection: collection,
		batchSize:  batchSize,
		logger:     logger,
	}
}

func (s *Service) Engine() Engine { return s.engine }

func (s *Service) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.index.EnsureCollection(ctx, s.engine.Dimensions()); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// ProcessMessage embeds every field of msg and marks it processed. It returns
// the number of embeddings written. On failure the error is recorded on the
// message so it is not retried by ProcessPending.
func (s *Service) ProcessMessage(ctx context.Context, msg *domain.Message) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, fmt.Errorf("failed to prepare vector collection: %w", err)
	}
	n, err := s.embedMessage(ctx, msg)
	if err != nil {
		if markErr := s.store.MarkProcessed(ctx, msg.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to record processing error", zap.Int64("message_id", msg.ID), zap.Error(markErr))
		}
		return 0, err
	}
	if err := s.store.MarkProcessed(ctx, msg.ID, ""); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Service) embedMessage(ctx context.Context, msg *domain.Message) (int, error) {
	fields := Fields(msg)
	if len(fields) == 0 {
		return 0, nil
	}
	texts := make([]string, len(fields))
	for i, f := range fields {
		texts[i] = f.Text
	}

	vecs, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		for _, f := range fields {
			metrics.RecordEmbedding(f.Name, err)
		}
		return 0, fmt.Errorf("failed to embed message %d: %w", msg.ID, err)
	}

	points := make([]vector.Point, len(fields))
	for i, f := range fields {
		points[i] = vector.Point{
			ID:     uuid.NewString(),
			Vector: vecs[i],
			Payload: vector.Payload{
				MessageID:         msg.ID,
				ExternalMessageID: msg.ExternalMessageID,
				AccountID:         msg.AccountID,
				FieldName:         f.Name,
				Model:             s.engine.Name(),
				Subject:           msg.Subject,
				SenderEmail:       msg.SenderEmail,
				DateSent:          msg.DateSent.UTC().Format(time.RFC3339),
			},
		}
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to store vectors for message %d: %w", msg.ID, err)
	}

	for i, f := range fields {
		err := s.store.UpsertEmbedding(ctx, &domain.MessageEmbedding{
			MessageID:      msg.ID,
			FieldName:      f.Name,
			EmbeddingModel: s.engine.Name(),
			VectorID:       points[i].ID,
			Collection:     s.collection,
			Dimensions:     len(vecs[i]),
		})
		metrics.RecordEmbedding(f.Name, err)
		if err != nil {
			return i, err
		}
	}
	return len(fields), nil
}

// ProcessBatch embeds msgs in chunks of the configured batch size. Chunks run
// concurrently; a failed message does not stop the batch.
func (s *Service) ProcessBatch(ctx context.Context, msgs []domain.Message) (*BatchStats, error) {
	start := time.Now()
	stats := &BatchStats{Total: len(msgs)}
	if len(msgs) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for lo := 0; lo < len(msgs); lo += s.batchSize {
		chunk := msgs[lo:min(lo+s.batchSize, len(msgs))]
		g.Go(func() error {
			for i := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, err := s.ProcessMessage(gctx, &chunk[i])

				mu.Lock()
				if err != nil {
					stats.Failed++
					stats.Errors = append(stats.Errors, err.Error())
				} else {
					stats.Succeeded++
					stats.Embeddings += n
				}
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	stats.Duration = time.Since(start)

	s.logger.Info("embedding batch finished",
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("embeddings", stats.Embeddings),
		zap.Duration("duration", stats.Duration),
	)
	return stats, err
}

// ProcessPending embeds up to limit messages that have not been processed.
func (s *Service) ProcessPending(ctx context.Context, limit int) (*BatchStats, error) {
	msgs, err := s.store.UnprocessedMessages(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.ProcessBatch(ctx, msgs)
}

// CollectionStats reports on the backing vector collection.
func (s *Service) CollectionStats(ctx context.Context) (*vector.Stats, error) {
	return s.index.Stats(ctx)
}
