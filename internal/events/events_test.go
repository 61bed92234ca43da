package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = Nop{}
)

func TestJobEventFromJob(t *testing.T) {
	job := finetune.Job{
		ID:             "ftjob-abc",
		BaseModel:      "gpt-4o-mini-2024-07-18",
		TrainingFileID: "file-xyz",
		Status:         finetune.StatusCancelled,
		CreatedAt:      time.Unix(1700000000, 0),
	}

	evt := jobEvent(job)
	if evt.JobID != "ftjob-abc" || evt.FileID != "file-xyz" {
		t.Errorf("unexpected ids: %+v", evt)
	}
	if evt.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("expected model, got %q", evt.Model)
	}
	if evt.Status != finetune.StatusCancelled {
		t.Errorf("expected cancelled, got %q", evt.Status)
	}
}

func TestJobEventParsing(t *testing.T) {
	raw := `{
		"event_id": "8d2f9d7e-0000-0000-0000-000000000000",
		"timestamp": "2026-01-02T03:04:05Z",
		"job_id": "ftjob-1",
		"file_id": "file-1",
		"model": "gpt-4.1-2025-04-14",
		"status": "validating_files"
	}`

	var evt JobEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("failed to parse JobEvent: %v", err)
	}
	if evt.JobID != "ftjob-1" {
		t.Errorf("expected job_id 'ftjob-1', got '%s'", evt.JobID)
	}
	if evt.Status != finetune.StatusValidatingFiles {
		t.Errorf("expected status 'validating_files', got '%s'", evt.Status)
	}
}

func TestFileEventOmitsJobFields(t *testing.T) {
	data, err := json.Marshal(JobEvent{EventID: "e", Timestamp: "t", FileID: "file-1", Filename: "train.jsonl"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	s := string(data)
	for _, key := range []string{"job_id", "model", "status"} {
		if strings.Contains(s, key) {
			t.Errorf("expected %q to be omitted from %s", key, s)
		}
	}
}

func TestSubjectConstants(t *testing.T) {
	for _, s := range []string{SubjectFileUploaded, SubjectJobCreated, SubjectJobCancelled} {
		if !strings.HasPrefix(s, "tuner.") {
			t.Errorf("expected subject %q under tuner.", s)
		}
	}
}
