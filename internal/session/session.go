// Package session keeps per-browser state in memory: the provider credential
// and the jobs touched during the session. Nothing here is written to disk.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

// MaxRecentJobs bounds the per-session job history.
const MaxRecentJobs = 50

// Session is one browser's state. Safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	lastSeen   time.Time
	credential finetune.Credential
	recent     []finetune.Job
}

func (s *Session) Credential() finetune.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

func (s *Session) SetCredential(c finetune.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = c
}

func (s *Session) Authenticated() bool {
	return s.Credential().Valid()
}

// Remember records a job snapshot, replacing any earlier snapshot of the
// same job and moving it to the front.
func (s *Session) Remember(j finetune.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]finetune.Job, 0, len(s.recent)+1)
	out = append(out, j)
	for _, r := range s.recent {
		if r.ID != j.ID {
			out = append(out, r)
		}
	}
	if len(out) > MaxRecentJobs {
		out = out[:MaxRecentJobs]
	}
	s.recent = out
}

// Recent returns a copy of the remembered jobs, newest first.
func (s *Session) Recent() []finetune.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]finetune.Job{}, s.recent...)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen)
}

// Store is a thread-safe in-memory session store. Sessions live until
// deleted or swept for idleness.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// defaultCredential pre-fills new sessions, mirroring OPENAI_API_KEY.
	defaultCredential finetune.Credential
	now               func() time.Time
}

func NewStore(defaultCredential finetune.Credential) *Store {
	return &Store{
		sessions:          make(map[string]*Session),
		defaultCredential: defaultCredential,
		now:               time.Now,
	}
}

func (s *Store) Create() *Session {
	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastSeen:   now,
		credential: s.defaultCredential,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session and marks it as seen.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.touch(s.now())
	}
	return sess, ok
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep deletes sessions not seen for longer than maxIdle and returns how
// many it removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince(now) > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps idle sessions every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, maxIdle, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(maxIdle); n > 0 {
				logger.Info("expired idle sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}

const CookieName = "tuner_session"

// Sign appends an HMAC-SHA256 signature to a session ID.
func Sign(id, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return id + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signed cookie value and returns the session ID if valid.
func Verify(signed, secret string) (string, bool) {
	dot := strings.LastIndexByte(signed, '.')
	if dot <= 0 || dot == len(signed)-1 {
		return "", false
	}
	id, sig := signed[:dot], signed[dot+1:]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return id, true
}

func SetCookie(w http.ResponseWriter, r *http.Request, id, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    Sign(id, secret),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// ReadCookie reads and verifies the session cookie from the request.
func ReadCookie(r *http.Request, secret string) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	return Verify(c.Value, secret)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
