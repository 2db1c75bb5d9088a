package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssignmentNoticeJob emails a reviewer when a call lands in their queue.
type AssignmentNoticeJob struct {
	Pool   *pgxpool.Pool
	Mailer *Client
	Logger *slog.Logger
}

// NewAssignmentNoticeJob initialises the notice handler.
func NewAssignmentNoticeJob(pool *pgxpool.Pool, mailer *Client, logger *slog.Logger) *AssignmentNoticeJob {
	return &AssignmentNoticeJob{Pool: pool, Mailer: mailer, Logger: logger}
}

// Handle looks up the reviewer's address and queues the notification email.
func (j *AssignmentNoticeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("assignment notice: handler not configured")
	}
	var payload AssignmentNoticePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var email, name string
	err := j.Pool.QueryRow(ctx, `SELECT email, name FROM users WHERE id = $1`, payload.ReviewerID).Scan(&email, &name)
	if err != nil {
		// Reviewer removed between enqueue and delivery; nothing to send.
		if j.Logger != nil {
			j.Logger.Warn("assignment notice reviewer lookup", slog.Int64("reviewer_id", payload.ReviewerID), slog.Any("error", err))
		}
		return asynq.SkipRetry
	}

	if _, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: fmt.Sprintf("New call assigned: %s", payload.CallRef),
		Body:    fmt.Sprintf("Hi %s,\n\nCall %s has been assigned to you for review. Sign in to CallGrade to start.\n", name, payload.CallRef),
	}); err != nil {
		return err
	}
	return nil
}
