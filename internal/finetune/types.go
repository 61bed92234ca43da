package finetune

import (
	"log/slog"
	"strings"
	"time"
)

// Credential is the provider API key. It formats and logs as a redacted
// placeholder so it cannot leak through %v, %s or slog attributes.
type Credential string

const redacted = "[REDACTED]"

func (c Credential) Valid() bool { return strings.TrimSpace(string(c)) != "" }

func (c Credential) String() string   { return redacted }
func (c Credential) GoString() string { return redacted }

func (c Credential) LogValue() slog.Value { return slog.StringValue(redacted) }

// Status is the provider-defined state of a fine-tuning job.
type Status string

const (
	StatusValidatingFiles Status = "validating_files"
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusCancelling      Status = "cancelling"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobError is the terminal failure detail the provider attaches to a failed job.
type JobError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Job is a snapshot of a remote fine-tuning job.
type Job struct {
	ID             string     `json:"id"`
	BaseModel      string     `json:"base_model"`
	TrainingFileID string     `json:"training_file_id"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	FineTunedModel string     `json:"fine_tuned_model,omitempty"`
	Error          *JobError  `json:"error,omitempty"`
}

// Message is one turn of a chat-formatted training example.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteJob struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	TrainingFile   string    `json:"training_file"`
	Status         Status    `json:"status"`
	CreatedAt      int64     `json:"created_at"`
	FinishedAt     *int64    `json:"finished_at"`
	FineTunedModel *string   `json:"fine_tuned_model"`
	Error          *JobError `json:"error"`
}

func (r remoteJob) toJob() Job {
	j := Job{
		ID:             r.ID,
		BaseModel:      r.Model,
		TrainingFileID: r.TrainingFile,
		Status:         r.Status,
		CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
	}
	if r.FinishedAt != nil && *r.FinishedAt > 0 {
		t := time.Unix(*r.FinishedAt, 0).UTC()
		j.FinishedAt = &t
	}
	if r.FineTunedModel != nil {
		j.FineTunedModel = *r.FineTunedModel
	}
	// The provider sends an all-empty error object for jobs that have not failed.
	if r.Error != nil && (r.Error.Code != "" || r.Error.Message != "") {
		e := *r.Error
		j.Error = &e
	}
	return j
}

type jobList struct {
	Data    []remoteJob `json:"data"`
	HasMore bool        `json:"has_more"`
}

type modelList struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

type fileObject struct {
	ID       string `json:"id"`
	Bytes    int64  `json:"bytes"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
	Status   string `json:"status"`
}

type createJobRequest struct {
	TrainingFile string `json:"training_file"`
	Model        string `json:"model"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Param   any    `json:"param"`
	} `json:"error"`
}
