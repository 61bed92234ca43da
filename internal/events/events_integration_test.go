//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_JobCreatedEvent(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	listener, err := nats.Connect(natsURL, nats.Token(os.Getenv("NATS_TOKEN")))
	if err != nil {
		t.Fatalf("listener connect: %v", err)
	}
	defer listener.Close()

	received := make(chan JobEvent, 1)
	_, err = listener.Subscribe("tuner.job.>", func(msg *nats.Msg) {
		var evt JobEvent
		json.Unmarshal(msg.Data, &evt)
		received <- evt
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := listener.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	client.JobCreated(finetune.Job{ID: "ftjob-int", BaseModel: finetune.DefaultBaseModel, Status: finetune.StatusQueued})

	select {
	case evt := <-received:
		if evt.JobID != "ftjob-int" {
			t.Errorf("expected ftjob-int, got %+v", evt)
		}
		if evt.EventID == "" || evt.Timestamp == "" {
			t.Errorf("expected event id and timestamp, got %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
