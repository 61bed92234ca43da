package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func fakeProvider(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`))
			return
		}
		switch {
		case r.URL.Path == "/models":
			w.Write([]byte(`{"data":[{"id":"gpt-4o-mini-2024-07-18"},{"id":"whisper-1"}]}`))
		case strings.HasPrefix(r.URL.Path, "/fine_tuning/jobs/"):
			w.Write([]byte(`{"id":"ftjob-1","model":"gpt-4o-mini-2024-07-18","training_file":"file-1","status":"succeeded","created_at":1700000000}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestModelsCommand(t *testing.T) {
	srv, _ := fakeProvider(t)

	out, err := runCLI(t, "models", "--base-url", srv.URL, "--api-key", "sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(resp.Models) != 1 || resp.Models[0] != "gpt-4o-mini-2024-07-18" {
		t.Errorf("unexpected models: %v", resp.Models)
	}
}

func TestModelsCommand_PaddedKeyTrimmed(t *testing.T) {
	srv, _ := fakeProvider(t)

	if _, err := runCLI(t, "models", "--base-url", srv.URL, "--api-key", "  sk-test \n"); err != nil {
		t.Fatalf("expected padded key to be trimmed, got %v", err)
	}
}

func TestModelsCommand_PaddedEnvKeyTrimmed(t *testing.T) {
	srv, _ := fakeProvider(t)
	t.Setenv("OPENAI_API_KEY", " sk-test ")

	if _, err := runCLI(t, "models", "--base-url", srv.URL); err != nil {
		t.Fatalf("expected padded key to be trimmed, got %v", err)
	}
}

func TestStatusCommand_BadKey(t *testing.T) {
	srv, _ := fakeProvider(t)

	_, err := runCLI(t, "status", "ftjob-1", "--base-url", srv.URL, "--api-key", "sk-wrong")
	if !errors.Is(err, finetune.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-wrong") {
		t.Error("error message contains the credential")
	}
}

func TestCancelCommand_TerminalJob(t *testing.T) {
	srv, calls := fakeProvider(t)

	_, err := runCLI(t, "cancel", "ftjob-1", "--base-url", srv.URL, "--api-key", "sk-test")
	if !errors.Is(err, finetune.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected only the status lookup to reach the provider, got %d calls", calls.Load())
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, `{"messages":[{"role":"user","content":"hi"}]}`+"\n")

	out, err := runCLI(t, "validate", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestValidateCommand_ReportsLine(t *testing.T) {
	path := writeFile(t, `{"messages":[{"role":"user","content":"hi"}]}`+"\n{broken\n")

	_, err := runCLI(t, "validate", path)
	var fe *finetune.Error
	if !errors.As(err, &fe) || fe.Kind != finetune.KindValidation || fe.Line != 2 {
		t.Fatalf("expected validation error on line 2, got %v", err)
	}
}

func TestUploadCommand_BlankKeyNoNetwork(t *testing.T) {
	srv, calls := fakeProvider(t)
	t.Setenv("OPENAI_API_KEY", "")
	path := writeFile(t, `{"messages":[{"role":"user","content":"hi"}]}`+"\n")

	_, err := runCLI(t, "upload", path, "--base-url", srv.URL)
	if !errors.Is(err, finetune.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no provider calls, got %d", calls.Load())
	}
}

func TestCreateCommand_RequiresFileID(t *testing.T) {
	_, err := runCLI(t, "create", "--api-key", "sk-test")
	if err == nil || !strings.Contains(err.Error(), "file-id") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
}
