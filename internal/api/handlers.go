package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
	"github.com/MikeSquared-Agency/tuner/internal/session"
)

const previewLines = 5

type loginRequest struct {
	APIKey string `json:"api_key"`
}

type createJobRequest struct {
	FileID string `json:"file_id" validate:"required"`
	Model  string `json:"model" validate:"required"`
}

type modelsResponse struct {
	Models   []string `json:"models"`
	Default  string   `json:"default"`
	Fallback bool     `json:"fallback"`
	Warning  string   `json:"warning,omitempty"`
}

type previewResponse struct {
	Filename  string     `json:"filename"`
	Lines     []string   `json:"lines"`
	Remaining int        `json:"remaining"`
	Valid     bool       `json:"valid"`
	Error     *errorBody `json:"error,omitempty"`
}

type fineTuneResponse struct {
	FileID string        `json:"file_id"`
	Job    *finetune.Job `json:"job"`
}

// GET /api/v1/session
func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": sess.Authenticated()})
}

// POST /api/v1/session
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	cred := finetune.Credential(strings.TrimSpace(req.APIKey))
	if !cred.Valid() {
		writeError(w, &finetune.Error{Kind: finetune.KindAuthentication, Message: "API key is required"})
		return
	}

	sess := session.FromContext(r.Context())
	sess.SetCredential(cred)
	s.logger.Info("api key accepted", "session", sess.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// DELETE /api/v1/session
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	sess.SetCredential("")
	s.sessions.Delete(sess.ID)
	session.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/models
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	models, err := s.client.ListBaseModels(r.Context(), sess.Credential())
	if err != nil && finetune.KindOf(err) == finetune.KindAuthentication {
		writeError(w, err)
		return
	}

	resp := modelsResponse{Models: models, Default: finetune.DefaultBaseModel}
	switch {
	case err != nil:
		resp.Models = finetune.StaticBaseModels
		resp.Fallback = true
		resp.Warning = "model listing unavailable, showing the built-in list: " + errorMessage(err)
	case len(models) == 0:
		resp.Models = finetune.StaticBaseModels
		resp.Fallback = true
		resp.Warning = "the provider listed none of the known fine-tunable models"
	}
	if !slices.Contains(resp.Models, resp.Default) {
		resp.Default = resp.Models[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/files/preview
func (s *Server) previewFile(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readTrainingFile(w, r)
	if !ok {
		return
	}
	lines, remaining := finetune.Preview(data, previewLines)
	resp := previewResponse{Filename: filename, Lines: lines, Remaining: remaining, Valid: true}
	if err := finetune.ValidateTrainingFile(data); err != nil {
		resp.Valid = false
		resp.Error = &errorBody{Kind: string(finetune.KindValidation), Message: err.Error()}
		var fe *finetune.Error
		if errors.As(err, &fe) {
			resp.Error.Message = fe.Message
			resp.Error.Line = fe.Line
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/files
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readTrainingFile(w, r)
	if !ok {
		return
	}
	sess := session.FromContext(r.Context())
	fileID, err := s.client.UploadTrainingFile(r.Context(), sess.Credential(), data, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	s.events.FileUploaded(fileID, filename)
	writeJSON(w, http.StatusCreated, map[string]string{"file_id": fileID, "filename": filename})
}

// POST /api/v1/jobs
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), describeValidation(err))
		return
	}

	sess := session.FromContext(r.Context())
	job, err := s.client.CreateJob(r.Context(), sess.Credential(), req.FileID, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Remember(*job)
	s.events.JobCreated(*job)
	writeJSON(w, http.StatusCreated, job)
}

// POST /api/v1/finetune uploads the file and starts a job in one action.
func (s *Server) startFineTune(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readTrainingFile(w, r)
	if !ok {
		return
	}
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		model = finetune.DefaultBaseModel
	}
	if !finetune.IsFineTunable(model) {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation),
			fmt.Sprintf("model %q is not a fine-tunable base model", model))
		return
	}

	sess := session.FromContext(r.Context())
	fileID, err := s.client.UploadTrainingFile(r.Context(), sess.Credential(), data, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	s.events.FileUploaded(fileID, filename)

	job, err := s.client.CreateJob(r.Context(), sess.Credential(), fileID, model)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Remember(*job)
	s.events.JobCreated(*job)
	writeJSON(w, http.StatusCreated, fineTuneResponse{FileID: fileID, Job: job})
}

// GET /api/v1/jobs
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	jobs, err := s.client.ListJobs(r.Context(), sess.Credential())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// GET /api/v1/jobs/recent
func (s *Server) recentJobs(w http.ResponseWriter, r *http.Request) {
	jobs := session.FromContext(r.Context()).Recent()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// GET /api/v1/jobs/{id}
func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	job, err := s.client.GetJobStatus(r.Context(), sess.Credential(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Remember(*job)
	writeJSON(w, http.StatusOK, job)
}

// POST /api/v1/jobs/{id}/cancel
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	job, err := s.client.CancelJob(r.Context(), sess.Credential(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess.Remember(*job)
	s.events.JobCancelled(*job)
	writeJSON(w, http.StatusOK, job)
}

// readTrainingFile pulls the "file" part out of a multipart request, writing
// the error response itself when it cannot.
func (s *Server) readTrainingFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, string(finetune.KindValidation),
				fmt.Sprintf("training file exceeds %d bytes", s.maxUpload))
			return nil, "", false
		}
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), "expected a multipart form with a \"file\" field")
		return nil, "", false
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), "missing \"file\" field")
		return nil, "", false
	}
	defer f.Close()

	filename := filepath.Base(hdr.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".jsonl") {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), "training file must have a .jsonl extension")
		return nil, "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(finetune.KindValidation), fmt.Sprintf("read training file: %v", err))
		return nil, "", false
	}
	return data, filename, true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, "; ")
}
