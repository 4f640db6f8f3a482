package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/models"
)

type fakeProgressRepo struct {
	rows    map[[3]uint]models.UserProgress
	nextID  uint
	failAll bool
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: map[[3]uint]models.UserProgress{}, nextID: 1}
}

func (f *fakeProgressRepo) GetOrCreate(ctx context.Context, userID, courseID, itemID uint) (models.UserProgress, error) {
	if f.failAll {
		return models.UserProgress{}, gorm.ErrRecordNotFound
	}
	key := [3]uint{userID, courseID, itemID}
	if row, ok := f.rows[key]; ok {
		return row, nil
	}
	row := models.UserProgress{
		ID:       f.nextID,
		UserID:   userID,
		CourseID: courseID,
		ItemID:   itemID,
		Status:   models.ProgressNotStarted,
	}
	f.nextID++
	f.rows[key] = row
	return row, nil
}

func (f *fakeProgressRepo) ListByUserAndCourse(ctx context.Context, userID, courseID uint) ([]models.UserProgress, error) {
	var rows []models.UserProgress
	for _, row := range f.rows {
		if row.UserID == userID && row.CourseID == courseID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeProgressRepo) SetStarted(ctx context.Context, id uint, startedAt time.Time) (bool, error) {
	for key, row := range f.rows {
		if row.ID != id {
			continue
		}
		if row.Status != models.ProgressNotStarted {
			return false, nil
		}
		row.Status = models.ProgressInProgress
		row.StartedAt = &startedAt
		f.rows[key] = row
		return true, nil
	}
	return false, gorm.ErrRecordNotFound
}

func (f *fakeProgressRepo) SetCompleted(ctx context.Context, id uint, completedAt time.Time) (bool, error) {
	for key, row := range f.rows {
		if row.ID != id {
			continue
		}
		if row.Status == models.ProgressCompleted {
			return false, nil
		}
		row.Status = models.ProgressCompleted
		row.CompletedAt = &completedAt
		f.rows[key] = row
		return true, nil
	}
	return false, gorm.ErrRecordNotFound
}

func (f *fakeProgressRepo) AddTimeSpent(ctx context.Context, id uint, seconds int) error {
	for key, row := range f.rows {
		if row.ID == id {
			row.TimeSpentSeconds += seconds
			f.rows[key] = row
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeProgressRepo) get(userID, courseID, itemID uint) models.UserProgress {
	return f.rows[[3]uint{userID, courseID, itemID}]
}

func newProgressFixture() (*progressService, *fakeProgressRepo) {
	repo := newFakeProgressRepo()
	svc := NewProgressService(repo, nil, time.Minute, testLogger()).(*progressService)
	return svc, repo
}

func TestMarkStartedTransitionsOnce(t *testing.T) {
	svc, repo := newProgressFixture()
	ctx := context.Background()

	require.NoError(t, svc.MarkStarted(ctx, 1, 2, 3))
	row := repo.get(1, 2, 3)
	require.Equal(t, models.ProgressInProgress, row.Status)
	require.NotNil(t, row.StartedAt)

	startedAt := *row.StartedAt
	require.NoError(t, svc.MarkStarted(ctx, 1, 2, 3))
	require.Equal(t, startedAt, *repo.get(1, 2, 3).StartedAt)
}

func TestMarkCompletedFromAnyState(t *testing.T) {
	svc, repo := newProgressFixture()
	ctx := context.Background()

	// Direct completion without a prior start is allowed.
	require.NoError(t, svc.MarkCompleted(ctx, 1, 2, 3))
	require.Equal(t, models.ProgressCompleted, repo.get(1, 2, 3).Status)

	require.NoError(t, svc.MarkStarted(ctx, 1, 2, 4))
	require.NoError(t, svc.MarkCompleted(ctx, 1, 2, 4))
	require.Equal(t, models.ProgressCompleted, repo.get(1, 2, 4).Status)
}

func TestProgressNeverRegresses(t *testing.T) {
	svc, repo := newProgressFixture()
	ctx := context.Background()

	require.NoError(t, svc.MarkCompleted(ctx, 1, 2, 3))
	completedAt := *repo.get(1, 2, 3).CompletedAt

	require.NoError(t, svc.MarkStarted(ctx, 1, 2, 3))
	require.Equal(t, models.ProgressCompleted, repo.get(1, 2, 3).Status)

	require.NoError(t, svc.MarkCompleted(ctx, 1, 2, 3))
	require.Equal(t, completedAt, *repo.get(1, 2, 3).CompletedAt)
}

func TestAddTimeSpentAccumulates(t *testing.T) {
	svc, repo := newProgressFixture()
	ctx := context.Background()

	require.NoError(t, svc.AddTimeSpent(ctx, 1, 2, 3, 30))
	require.NoError(t, svc.AddTimeSpent(ctx, 1, 2, 3, 30))
	require.Equal(t, 60, repo.get(1, 2, 3).TimeSpentSeconds)
}

func TestAddTimeSpentClampsNegative(t *testing.T) {
	svc, repo := newProgressFixture()
	ctx := context.Background()

	require.NoError(t, svc.AddTimeSpent(ctx, 1, 2, 3, 45))
	require.NoError(t, svc.AddTimeSpent(ctx, 1, 2, 3, -10))
	require.Equal(t, 45, repo.get(1, 2, 3).TimeSpentSeconds)
}

func TestProgressReferentialFailure(t *testing.T) {
	svc, repo := newProgressFixture()
	repo.failAll = true

	err := svc.MarkStarted(context.Background(), 1, 2, 3)
	require.ErrorIs(t, err, ErrProgressNotFound)
}

func TestCourseOverviewCountsCompleted(t *testing.T) {
	svc, _ := newProgressFixture()
	ctx := context.Background()

	require.NoError(t, svc.MarkCompleted(ctx, 1, 2, 3))
	require.NoError(t, svc.MarkStarted(ctx, 1, 2, 4))

	overview, err := svc.CourseOverview(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, overview.Items, 2)
	require.Equal(t, 1, overview.CompletedItems)
}
