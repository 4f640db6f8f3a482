package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGetOrCreateReturnsSameRow(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, 5, 10, 1)
	require.NoError(t, err)
	require.False(t, first.Finished)

	second, err := repo.GetOrCreate(ctx, 5, 10, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	other, err := repo.GetOrCreate(ctx, 6, 10, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestFinalizeIsOneWay(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	submission, err := repo.GetOrCreate(ctx, 5, 10, 1)
	require.NoError(t, err)

	submittedAt := time.Now().UTC().Truncate(time.Second)
	timeSpent := 120
	answers := datatypes.JSONMap{"7": "B"}

	require.NoError(t, repo.Finalize(ctx, submission.ID, answers, submittedAt, &timeSpent))

	// A second finalize must lose the compare-and-set and leave the row
	// untouched.
	err = repo.Finalize(ctx, submission.ID, datatypes.JSONMap{"7": "A"}, time.Now(), nil)
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	stored, err := repo.GetByUserAndAssessment(ctx, 5, 1)
	require.NoError(t, err)
	require.True(t, stored.Finished)
	require.Equal(t, "B", stored.Answers["7"])
	require.NotNil(t, stored.TimeSpentSeconds)
	require.Equal(t, 120, *stored.TimeSpentSeconds)
}

func TestFinalizeUnknownSubmission(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))

	err := repo.Finalize(context.Background(), 999, datatypes.JSONMap{}, time.Now(), nil)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestSetGradeMarksGraded(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	submission, err := repo.GetOrCreate(ctx, 5, 10, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Finalize(ctx, submission.ID, datatypes.JSONMap{"7": "B"}, time.Now(), nil))

	gradedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SetGrade(ctx, submission.ID, 85, gradedAt))

	stored, err := repo.GetByUserAndAssessment(ctx, 5, 1)
	require.NoError(t, err)
	require.True(t, stored.IsGraded())
	require.NotNil(t, stored.Score)
	require.Equal(t, 85.0, *stored.Score)
}

func TestListFinishedByAssessment(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	finished, err := repo.GetOrCreate(ctx, 5, 10, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Finalize(ctx, finished.ID, datatypes.JSONMap{}, time.Now(), nil))

	_, err = repo.GetOrCreate(ctx, 6, 10, 1)
	require.NoError(t, err)

	rows, err := repo.ListFinishedByAssessment(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint(5), rows[0].UserID)
}
