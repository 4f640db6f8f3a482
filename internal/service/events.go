package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventPublisher notifies downstream observers of submission lifecycle
// transitions. Publication is best effort: failures are logged and never
// affect the caller's result.
type EventPublisher interface {
	SubmissionFinalized(ctx context.Context, event SubmissionEvent)
	SubmissionGraded(ctx context.Context, event SubmissionEvent)
}

// SubmissionEvent is the payload shared by submission lifecycle events.
type SubmissionEvent struct {
	EventID      string    `json:"event_id"`
	SubmissionID uint      `json:"submission_id"`
	UserID       uint      `json:"user_id"`
	CourseID     uint      `json:"course_id"`
	AssessmentID uint      `json:"assessment_id"`
	Score        *float64  `json:"score,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const (
	subjectSubmissionFinalized = "submission.finalized"
	subjectSubmissionGraded    = "submission.graded"
)

type eventPublisher struct {
	nats        *nats.Conn
	redis       *redis.Client
	streamBase  string
	subjectBase string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEventPublisher constructs a publisher over NATS with a Redis stream
// mirror. Either backend may be nil; the publisher degrades gracefully.
func NewEventPublisher(natsConn *nats.Conn, redisClient *redis.Client, channelBase string, logger zerolog.Logger) EventPublisher {
	return &eventPublisher{
		nats:        natsConn,
		redis:       redisClient,
		streamBase:  channelBase,
		subjectBase: channelBase,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
		now:         time.Now,
	}
}

func (p *eventPublisher) SubmissionFinalized(ctx context.Context, event SubmissionEvent) {
	p.publish(ctx, subjectSubmissionFinalized, event)
}

func (p *eventPublisher) SubmissionGraded(ctx context.Context, event SubmissionEvent) {
	p.publish(ctx, subjectSubmissionGraded, event)
}

func (p *eventPublisher) publish(ctx context.Context, subject string, event SubmissionEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to encode event")
		return
	}

	if p.nats != nil {
		fullSubject := subject
		if p.subjectBase != "" {
			fullSubject = p.subjectBase + "." + subject
		}
		if err := p.nats.Publish(fullSubject, payload); err != nil {
			p.logger.Warn().Err(err).Str("subject", fullSubject).Msg("failed to publish event to nats")
		}
	}

	if p.redis != nil {
		stream := subject
		if p.streamBase != "" {
			stream = p.streamBase + ":" + subject
		}
		if err := p.redis.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]interface{}{"payload": payload},
		}).Err(); err != nil {
			p.logger.Warn().Err(err).Str("stream", stream).Msg("failed to mirror event to redis")
		}
	}
}
