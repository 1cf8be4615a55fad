package httpapi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"valentine/internal/wire"
)

// Backend is the game logic the REST surface exposes.
type Backend interface {
	StartSession(ctx context.Context, fingerprint, ip string) (wire.SessionStatus, error)
	Status(ctx context.Context, sessionID string) (wire.SessionStatus, error)
	Puzzle(ctx context.Context, sessionID string, stage int) (wire.Puzzle, error)
	Captcha(ctx context.Context, stage int) (wire.CaptchaData, error)
	MediaURL(ctx context.Context, key string) (string, error)
	Check(ctx context.Context, req wire.CheckRequest) (wire.CheckResult, error)
	Advance(ctx context.Context, sessionID string, stage int) error
	SaveTrollingPhase(ctx context.Context, sessionID, phase string) error
	SubmitChallenge(ctx context.Context, sessionID string) (string, error)
	ChallengeStatus(ctx context.Context, sessionID string) (string, error)
	Approve(ctx context.Context, sessionID string) (string, error)
	AdminSessions(ctx context.Context) ([]wire.AdminSession, error)
	AdminSessionDetail(ctx context.Context, sessionID string) (wire.AdminSessionDetail, error)
}

type Config struct {
	AdminPassword string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost  int
	CORSOrigins []string
	MediaDir    string
	Gatherer    prometheus.Gatherer
	Logger      *log.Logger
}

type Server struct {
	backend   Backend
	hub       *Hub
	adminHash []byte
	cfg       Config
	logger    *log.Logger
}

func New(backend Backend, hub *Hub, cfg Config) (*Server, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cost)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Server{backend: backend, hub: hub, adminHash: hash, cfg: cfg, logger: logger}, nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.handleSessionStart).Methods(http.MethodPost)
	api.HandleFunc("/session/status", s.handleSessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/puzzle/check", s.handlePuzzleCheck).Methods(http.MethodPost)
	api.HandleFunc("/puzzle/advance", s.handlePuzzleAdvance).Methods(http.MethodPost)
	api.HandleFunc("/puzzle/{stage:[0-9]+}", s.handlePuzzle).Methods(http.MethodGet)
	api.HandleFunc("/puzzle/{stage:[0-9]+}/captcha", s.handleCaptcha).Methods(http.MethodGet)
	api.HandleFunc("/photos/{key:.+}", s.handlePhoto).Methods(http.MethodGet)
	api.HandleFunc("/trolling/phase", s.handleTrollingPhase).Methods(http.MethodPost)
	api.HandleFunc("/challenge/submit", s.handleChallengeSubmit).Methods(http.MethodPost)
	api.HandleFunc("/challenge/status", s.handleChallengeStatus).Methods(http.MethodGet)
	api.HandleFunc("/challenge/watch", s.handleChallengeWatch).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/login", s.handleAdminLogin).Methods(http.MethodPost)
	admin.HandleFunc("/sessions", s.handleAdminSessions).Methods(http.MethodGet)
	admin.HandleFunc("/session/{id}", s.handleAdminSession).Methods(http.MethodGet)
	admin.HandleFunc("/approve/{id}", s.handleAdminApprove).Methods(http.MethodPost)

	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.cfg.MediaDir != "" {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaDir))))
	}

	if len(s.cfg.CORSOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", adminHeader}),
		handlers.AllowCredentials(),
	)(r)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get(adminHeader)
		if password == "" || bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) != nil {
			writeDetail(w, http.StatusForbidden, "Invalid admin password")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the access log.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
