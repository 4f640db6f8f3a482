package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/aula-lms/aula-api/internal/dto"
)

func TestBulkEnrollReportsPerUserOutcomes(t *testing.T) {
	repo := &fakeEnrollmentRepo{
		enrolled: map[[2]uint]bool{},
		failFor:  map[uint]error{7: errors.New("user suspended")},
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewEnrollmentService(repo, validate, testLogger())

	result, err := svc.BulkEnroll(context.Background(), 10, dto.BulkEnrollRequest{UserIDs: []uint{5, 6, 7}})
	require.NoError(t, err)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)

	// The batch continues past individual failures, and each failure
	// carries its reason.
	require.True(t, result.Results[0].OK)
	require.True(t, result.Results[1].OK)
	require.False(t, result.Results[2].OK)
	require.Equal(t, "user suspended", result.Results[2].Reason)

	require.True(t, repo.enrolled[[2]uint{5, 10}])
	require.True(t, repo.enrolled[[2]uint{6, 10}])
	require.False(t, repo.enrolled[[2]uint{7, 10}])
}

func TestBulkUnenroll(t *testing.T) {
	repo := &fakeEnrollmentRepo{
		enrolled: map[[2]uint]bool{{5, 10}: true, {6, 10}: true},
		failFor:  map[uint]error{},
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewEnrollmentService(repo, validate, testLogger())

	result, err := svc.BulkUnenroll(context.Background(), 10, dto.BulkEnrollRequest{UserIDs: []uint{5, 6}})
	require.NoError(t, err)
	require.Equal(t, 2, result.Succeeded)
	require.False(t, repo.enrolled[[2]uint{5, 10}])
}

func TestBulkEnrollValidatesPayload(t *testing.T) {
	repo := &fakeEnrollmentRepo{enrolled: map[[2]uint]bool{}}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewEnrollmentService(repo, validate, testLogger())

	_, err := svc.BulkEnroll(context.Background(), 10, dto.BulkEnrollRequest{})
	require.Error(t, err)
}
