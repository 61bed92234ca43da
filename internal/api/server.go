package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/tuner/internal/events"
	"github.com/MikeSquared-Agency/tuner/internal/finetune"
	"github.com/MikeSquared-Agency/tuner/internal/metrics"
	"github.com/MikeSquared-Agency/tuner/internal/session"
)

// FineTuner is the subset of *finetune.Client the handlers call.
type FineTuner interface {
	ListBaseModels(ctx context.Context, cred finetune.Credential) ([]string, error)
	UploadTrainingFile(ctx context.Context, cred finetune.Credential, data []byte, filename string) (string, error)
	CreateJob(ctx context.Context, cred finetune.Credential, fileID, baseModel string) (*finetune.Job, error)
	GetJobStatus(ctx context.Context, cred finetune.Credential, jobID string) (*finetune.Job, error)
	ListJobs(ctx context.Context, cred finetune.Credential) ([]finetune.Job, error)
	CancelJob(ctx context.Context, cred finetune.Credential, jobID string) (*finetune.Job, error)
}

type Options struct {
	Port           int
	Client         FineTuner
	Sessions       *session.Store
	SessionSecret  string
	Events         events.Publisher
	Metrics        *metrics.Metrics
	Assets         fs.FS
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	router    *chi.Mux
	port      int
	client    FineTuner
	sessions  *session.Store
	secret    string
	events    events.Publisher
	validate  *validator.Validate
	maxUpload int64
	logger    *slog.Logger
	http      *http.Server
}

func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      opts.Port,
		client:    opts.Client,
		sessions:  opts.Sessions,
		secret:    opts.SessionSecret,
		events:    opts.Events,
		validate:  newValidator(),
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
	}
	if s.sessions == nil {
		s.sessions = session.NewStore("")
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 512 << 20
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router.Get("/health", s.health)
	if opts.Metrics != nil {
		opts.Metrics.RegisterSessionGauge(s.sessions.Len)
		router.Handle("/metrics", opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/session", s.sessionStatus)
		r.Post("/session", s.login)
		r.Delete("/session", s.logout)

		r.Get("/models", s.listModels)

		r.Post("/files/preview", s.previewFile)
		r.Post("/files", s.uploadFile)
		r.Post("/finetune", s.startFineTune)

		r.Get("/jobs", s.listJobs)
		r.Post("/jobs", s.createJob)
		r.Get("/jobs/recent", s.recentJobs)
		r.Get("/jobs/{id}", s.jobStatus)
		r.Post("/jobs/{id}/cancel", s.cancelJob)
	})

	if opts.Assets != nil {
		router.Handle("/*", http.FileServer(http.FS(opts.Assets)))
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown. A Shutdown that lands before
// Start makes it return immediately.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionMiddleware attaches the caller's session to the request context,
// starting a new one when the cookie is missing, forged or stale.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *session.Session
		if id, ok := session.ReadCookie(r, s.secret); ok {
			sess, _ = s.sessions.Get(id)
		}
		if sess == nil {
			sess = s.sessions.Create()
			session.SetCookie(w, r, sess.ID, s.secret)
		}
		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
