// Package server exposes the task service over a JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cuckoo/internal/poller"
	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
	logx "cuckoo/pkg/logx"
)

type Server struct {
	tasks   *tasks.Service
	router  chi.Router
	log     logx.Logger
	started time.Time

	ping   func(ctx context.Context) error
	health func() any
	tick   func(ctx context.Context) (poller.TickReport, error)
	detect reminder.ContextProvider

	pprof      bool
	pprofToken string
}

type Option func(*Server)

func WithLogger(log logx.Logger) Option { return func(s *Server) { s.log = log } }

// WithPing reports database reachability on /api/health.
func WithPing(fn func(ctx context.Context) error) Option { return func(s *Server) { s.ping = fn } }

// WithHealth adds extra runtime details (loop stats) to /api/health.
func WithHealth(fn func() any) Option { return func(s *Server) { s.health = fn } }

// WithTick enables POST /api/poll.
func WithTick(fn func(ctx context.Context) (poller.TickReport, error)) Option {
	return func(s *Server) { s.tick = fn }
}

// WithContextProvider fills in the current context for /api/task/following
// when the request does not name one.
func WithContextProvider(p reminder.ContextProvider) Option {
	return func(s *Server) { s.detect = p }
}

// WithProfiler mounts net/http/pprof under /debug. A non-empty token must be
// sent as "Authorization: Bearer <token>" or ?token=.
func WithProfiler(token string) Option {
	return func(s *Server) { s.pprof, s.pprofToken = true, token }
}

func New(svc *tasks.Service, opts ...Option) *Server {
	s := &Server{tasks: svc, log: logx.Nop(), started: time.Now()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "http"))
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/poll", s.handlePoll)

		r.Get("/task", s.handleSearch)
		r.Post("/task", s.handleCreate)
		r.Get("/task/following", s.handleFollowing)
		r.Route("/task/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Post("/duplicate", s.handleDuplicate)
			r.Put("/remind", s.handleRemind)
			r.Get("/logs", s.handleLogs)
		})
		r.Patch("/remind/{id}", s.handlePatchRemind)
	})
	if s.pprof {
		r.Mount("/debug", s.requireToken(middleware.Profiler()))
	}
	s.router = r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.pprofToken == "" {
		return next
	}
	want := []byte(s.pprofToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenConfig configures Run.
type ListenConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg ListenConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, cfg)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg ListenConfig) error {
	hs := &http.Server{
		Handler:           s,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	s.log.Info("listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutCtx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}
