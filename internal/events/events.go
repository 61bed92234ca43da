package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

// Subjects for fine-tuning lifecycle events.
const (
	SubjectFileUploaded = "tuner.file.uploaded"
	SubjectJobCreated   = "tuner.job.created"
	SubjectJobCancelled = "tuner.job.cancelled"
)

// JobEvent is published after a successful user action. It carries no credential.
type JobEvent struct {
	EventID   string          `json:"event_id"`
	Timestamp string          `json:"timestamp"`
	FileID    string          `json:"file_id,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Status    finetune.Status `json:"status,omitempty"`
}

// Publisher announces lifecycle events. Failures are logged, never returned:
// an event outage must not fail the user's action.
type Publisher interface {
	FileUploaded(fileID, filename string)
	JobCreated(job finetune.Job)
	JobCancelled(job finetune.Job)
	Close()
}

// Nop discards events. Used when NATS is not configured.
type Nop struct{}

func (Nop) FileUploaded(string, string) {}
func (Nop) JobCreated(finetune.Job)     {}
func (Nop) JobCancelled(finetune.Job)   {}
func (Nop) Close()                      {}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("tuner"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) FileUploaded(fileID, filename string) {
	c.emit(SubjectFileUploaded, JobEvent{FileID: fileID, Filename: filename})
}

func (c *Client) JobCreated(job finetune.Job) {
	c.emit(SubjectJobCreated, jobEvent(job))
}

func (c *Client) JobCancelled(job finetune.Job) {
	c.emit(SubjectJobCancelled, jobEvent(job))
}

func (c *Client) emit(subject string, evt JobEvent) {
	evt.EventID = uuid.NewString()
	evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := c.Publish(subject, evt); err != nil {
		c.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func jobEvent(job finetune.Job) JobEvent {
	return JobEvent{
		FileID: job.TrainingFileID,
		JobID:  job.ID,
		Model:  job.BaseModel,
		Status: job.Status,
	}
}

// Close flushes pending events and disconnects.
func (c *Client) Close() {
	if err := c.conn.FlushTimeout(2 * time.Second); err != nil {
		c.logger.Warn("failed to flush events on close", "error", err)
	}
	c.conn.Close()
}
