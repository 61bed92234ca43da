// Package finetune is a stateless client for an OpenAI-compatible
// fine-tuning API. Every operation takes the caller's credential explicitly
// and issues its remote calls under its own bounded timeout.
package finetune

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Operation names, used for logging and metrics labels.
const (
	OpListModels = "list_models"
	OpUpload     = "upload_file"
	OpCreateJob  = "create_job"
	OpGetJob     = "get_job"
	OpListJobs   = "list_jobs"
	OpCancelJob  = "cancel_job"
)

// Observer is notified once per client operation.
type Observer interface {
	ObserveCall(op string, elapsed time.Duration, err error)
}

type Client struct {
	baseURL        string
	http           *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	pageSize       int
	logger         *slog.Logger
	observer       Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts sets the per-call bound for ordinary requests and for uploads.
// Non-positive values keep the defaults.
func WithTimeouts(request, upload time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.requestTimeout = request
		}
		if upload > 0 {
			c.uploadTimeout = upload
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithPageSize sets the page size used when listing jobs.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		requestTimeout: 30 * time.Second,
		uploadTimeout:  120 * time.Second,
		pageSize:       100,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBaseModels returns the fine-tunable models visible to the credential,
// in catalog order.
func (c *Client) ListBaseModels(ctx context.Context, cred Credential) (models []string, err error) {
	defer c.observe(OpListModels, time.Now(), &err)
	if !cred.Valid() {
		return nil, errMissingCredential()
	}

	var resp modelList
	if err := c.call(ctx, OpListModels, cred, c.requestTimeout, http.MethodGet, "/models", nil, "", &resp); err != nil {
		return nil, err
	}

	available := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		available = append(available, m.ID)
	}
	return fineTunable(available), nil
}

// UploadTrainingFile validates data locally and uploads it with purpose
// "fine-tune", returning the provider's file id. Nothing is sent when
// validation fails.
func (c *Client) UploadTrainingFile(ctx context.Context, cred Credential, data []byte, filename string) (fileID string, err error) {
	defer c.observe(OpUpload, time.Now(), &err)
	if !cred.Valid() {
		return "", errMissingCredential()
	}
	if err := ValidateTrainingFile(data); err != nil {
		return "", err
	}
	if filename == "" {
		filename = "training.jsonl"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "fine-tune"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	var file fileObject
	if err := c.call(ctx, OpUpload, cred, c.uploadTimeout, http.MethodPost, "/files", &body, mw.FormDataContentType(), &file); err != nil {
		return "", err
	}
	if file.ID == "" {
		return "", &Error{Kind: KindRemoteService, Message: "upload response carried no file id"}
	}

	c.logger.Info("training file uploaded", "file_id", file.ID, "filename", filename, "bytes", len(data))
	return file.ID, nil
}

// CreateJob starts a fine-tuning job. baseModel must be one of
// StaticBaseModels. Calls are not deduplicated: the same inputs twice create
// two jobs.
func (c *Client) CreateJob(ctx context.Context, cred Credential, fileID, baseModel string) (job *Job, err error) {
	defer c.observe(OpCreateJob, time.Now(), &err)
	if !cred.Valid() {
		return nil, errMissingCredential()
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, validationErr(0, "training file id is required")
	}
	if strings.TrimSpace(baseModel) == "" {
		return nil, validationErr(0, "base model is required")
	}
	if !IsFineTunable(baseModel) {
		return nil, validationErr(0, "model %q is not a fine-tunable base model", baseModel)
	}

	payload, err := json.Marshal(createJobRequest{TrainingFile: fileID, Model: baseModel})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp remoteJob
	if err := c.call(ctx, OpCreateJob, cred, c.requestTimeout, http.MethodPost, "/fine_tuning/jobs", bytes.NewReader(payload), "application/json", &resp); err != nil {
		return nil, err
	}

	created := resp.toJob()
	c.logger.Info("fine-tuning job created", "job_id", created.ID, "model", created.BaseModel, "status", created.Status)
	return &created, nil
}

// GetJobStatus fetches the current snapshot of a job. It never mutates remote state.
func (c *Client) GetJobStatus(ctx context.Context, cred Credential, jobID string) (job *Job, err error) {
	defer c.observe(OpGetJob, time.Now(), &err)
	return c.getJob(ctx, cred, jobID)
}

func (c *Client) getJob(ctx context.Context, cred Credential, jobID string) (*Job, error) {
	if !cred.Valid() {
		return nil, errMissingCredential()
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, validationErr(0, "job id is required")
	}

	var resp remoteJob
	if err := c.call(ctx, OpGetJob, cred, c.requestTimeout, http.MethodGet, "/fine_tuning/jobs/"+url.PathEscape(jobID), nil, "", &resp); err != nil {
		return nil, err
	}
	j := resp.toJob()
	return &j, nil
}

// ListJobs returns every job visible to the credential in the order the
// provider sends them (most recent first), following pagination to the end.
func (c *Client) ListJobs(ctx context.Context, cred Credential) (jobs []Job, err error) {
	defer c.observe(OpListJobs, time.Now(), &err)
	if !cred.Valid() {
		return nil, errMissingCredential()
	}

	jobs = []Job{}
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(c.pageSize))
		if after != "" {
			q.Set("after", after)
		}

		var page jobList
		if err := c.call(ctx, OpListJobs, cred, c.requestTimeout, http.MethodGet, "/fine_tuning/jobs?"+q.Encode(), nil, "", &page); err != nil {
			return nil, err
		}
		for _, r := range page.Data {
			jobs = append(jobs, r.toJob())
		}
		if !page.HasMore || len(page.Data) == 0 {
			return jobs, nil
		}
		after = page.Data[len(page.Data)-1].ID
	}
}

// CancelJob cancels a job that has not reached a terminal status. The job is
// fetched first and a terminal job is rejected without issuing the cancel.
func (c *Client) CancelJob(ctx context.Context, cred Credential, jobID string) (job *Job, err error) {
	defer c.observe(OpCancelJob, time.Now(), &err)

	current, err := c.getJob(ctx, cred, jobID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, &Error{
			Kind:    KindInvalidState,
			Message: fmt.Sprintf("job %s is already %s and cannot be cancelled", current.ID, current.Status),
		}
	}

	var resp remoteJob
	if err := c.call(ctx, OpCancelJob, cred, c.requestTimeout, http.MethodPost, "/fine_tuning/jobs/"+url.PathEscape(jobID)+"/cancel", nil, "", &resp); err != nil {
		return nil, err
	}

	cancelled := resp.toJob()
	c.logger.Info("fine-tuning job cancel requested", "job_id", cancelled.ID, "status", cancelled.Status)
	return &cancelled, nil
}

// call issues a single request under its own timeout and decodes a 2xx JSON
// body into out. Failures come back as *Error.
func (c *Client) call(ctx context.Context, op string, cred Credential, timeout time.Duration, method, path string, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(cred)))
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: op + " request failed", Err: transportCause(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: op + " read response", Err: transportCause(err)}
	}
	c.logger.Debug("remote call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(op, resp.StatusCode, respBody, cred)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindRemoteService, StatusCode: resp.StatusCode, Message: "unreadable response body", Err: err}
		}
	}
	return nil
}

// transportCause strips the request URL from *url.Error, keeping the cause.
func transportCause(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

func classify(op string, status int, body []byte, cred Credential) *Error {
	e := &Error{StatusCode: status}

	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		e.Message = scrub(er.Error.Message, cred)
		if code, ok := er.Error.Code.(string); ok {
			e.Code = code
		}
	} else {
		// Scrub before cutting so no fragment of the credential survives.
		e.Message = truncate(scrub(strings.TrimSpace(string(body)), cred), maxMessageBytes)
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuthentication
	case status == http.StatusTooManyRequests || e.Code == "insufficient_quota":
		e.Kind = KindQuotaExceeded
	case op == OpUpload && status == http.StatusBadRequest:
		e.Kind = KindValidation
	case op == OpCancelJob && (status == http.StatusBadRequest || status == http.StatusConflict):
		e.Kind = KindInvalidState
	case status == http.StatusConflict:
		e.Kind = KindInvalidState
	default:
		e.Kind = KindRemoteService
	}
	return e
}

const maxMessageBytes = 512

// scrub replaces every occurrence of the credential, as sent and trimmed.
func scrub(msg string, cred Credential) string {
	for _, secret := range []string{string(cred), strings.TrimSpace(string(cred))} {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, redacted)
		}
	}
	return msg
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (c *Client) observe(op string, start time.Time, err *error) {
	if c.observer != nil {
		c.observer.ObserveCall(op, time.Since(start), *err)
	}
	if *err != nil {
		c.logger.Warn("fine-tuning call failed", "op", op, "kind", KindOf(*err), "error", *err)
	}
}
