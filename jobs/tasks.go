package jobs

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSessionSweep revokes the live sessions of one suspended user.
	TaskSessionSweep = "session:sweep"
	// TaskSuspensionSweep is the cron fallback that revokes sessions of every
	// suspended user, catching any targeted sweep that was lost.
	TaskSuspensionSweep = "suspension:sweep"
	// TaskAssignmentNotice notifies a reviewer about a new assignment.
	TaskAssignmentNotice = "assignment:notice"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SessionSweepPayload identifies the user whose sessions are revoked.
type SessionSweepPayload struct {
	UserID int64 `json:"user_id"`
}

// AssignmentNoticePayload identifies the assignment a reviewer is told about.
type AssignmentNoticePayload struct {
	AssignmentID int64  `json:"assignment_id"`
	ReviewerID   int64  `json:"reviewer_id"`
	CallRef      string `json:"call_ref"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSessionSweepTask constructs a targeted session sweep task.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// NewSuspensionSweepTask constructs the periodic full sweep task.
func NewSuspensionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSuspensionSweep, nil)
}

// NewAssignmentNoticeTask constructs a reviewer notification task.
func NewAssignmentNoticeTask(payload AssignmentNoticePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentNotice, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks. No SMTP relay is
// configured in this deployment, so the send is recorded in the log.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Info("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}
