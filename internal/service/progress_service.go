package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/models"
	"github.com/aula-lms/aula-api/internal/repository"
)

// ErrProgressNotFound indicates a progress row could not be resolved for the
// given user/course/item triple.
var ErrProgressNotFound = errors.New("progress not found")

// ProgressService is the append-only ledger of per-item learner progress.
// Status moves strictly forward and accumulated time never shrinks.
type ProgressService interface {
	MarkStarted(ctx context.Context, userID, courseID, itemID uint) error
	MarkCompleted(ctx context.Context, userID, courseID, itemID uint) error
	AddTimeSpent(ctx context.Context, userID, courseID, itemID uint, seconds int) error
	CourseOverview(ctx context.Context, userID, courseID uint) (dto.CourseProgressResponse, error)
}

type progressService struct {
	repo     repository.ProgressRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProgressService constructs the progress ledger.
func NewProgressService(repo repository.ProgressRepository, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) ProgressService {
	return &progressService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("component", "progress_service").Logger(),
		now:      time.Now,
	}
}

// MarkStarted transitions not_started rows to in_progress. Calls on rows that
// already moved forward are no-ops, so callers may fire it on every view. The
// transition itself is a guarded update; losing the race to a concurrent
// completion leaves the row completed.
func (s *progressService) MarkStarted(ctx context.Context, userID, courseID, itemID uint) error {
	progress, err := s.repo.GetOrCreate(ctx, userID, courseID, itemID)
	if err != nil {
		return s.mapError(err)
	}

	if progress.Status != models.ProgressNotStarted {
		return nil
	}

	moved, err := s.repo.SetStarted(ctx, progress.ID, s.now())
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.invalidateOverview(ctx, userID, courseID)
	s.logger.Debug().Uint("user_id", userID).Uint("item_id", itemID).Msg("progress started")

	return nil
}

// MarkCompleted moves any prior status forward to completed. The completion
// timestamp is set on the first transition only; repeat calls are no-ops.
func (s *progressService) MarkCompleted(ctx context.Context, userID, courseID, itemID uint) error {
	progress, err := s.repo.GetOrCreate(ctx, userID, courseID, itemID)
	if err != nil {
		return s.mapError(err)
	}

	if progress.IsCompleted() {
		return nil
	}

	moved, err := s.repo.SetCompleted(ctx, progress.ID, s.now())
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.invalidateOverview(ctx, userID, courseID)
	s.logger.Debug().Uint("user_id", userID).Uint("item_id", itemID).Msg("progress completed")

	return nil
}

// AddTimeSpent accumulates client-reported seconds. Negative reports from
// noisy timers are clamped to a zero contribution instead of failing.
func (s *progressService) AddTimeSpent(ctx context.Context, userID, courseID, itemID uint, seconds int) error {
	if seconds <= 0 {
		return nil
	}

	progress, err := s.repo.GetOrCreate(ctx, userID, courseID, itemID)
	if err != nil {
		return s.mapError(err)
	}

	if err := s.repo.AddTimeSpent(ctx, progress.ID, seconds); err != nil {
		return err
	}

	s.invalidateOverview(ctx, userID, courseID)

	return nil
}

func (s *progressService) CourseOverview(ctx context.Context, userID, courseID uint) (dto.CourseProgressResponse, error) {
	cacheKey := s.overviewCacheKey(userID, courseID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.CourseProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
		}
	}

	rows, err := s.repo.ListByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return dto.CourseProgressResponse{}, err
	}

	response := dto.NewCourseProgressResponse(courseID, rows)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
			}
		}
	}

	return response, nil
}

func (s *progressService) overviewCacheKey(userID, courseID uint) string {
	return fmt.Sprintf("progress:user:%d:course:%d", userID, courseID)
}

func (s *progressService) invalidateOverview(ctx context.Context, userID, courseID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.overviewCacheKey(userID, courseID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate progress cache")
	}
}

func (s *progressService) mapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ErrProgressNotFound
	}
	return err
}
