// internal/httpserver/server.go
//
// HTTP server wiring for the Tesseract backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): /game/new, /game/{id}/...
//   - Audio cues: /audio/{phase}/{cue}.
//   - Daily leaderboard and run history: /daily/leaderboard, /runs/mine.
//   - Auth endpoints: /auth/*.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token is present;
//     routes can still run for guests.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tesseract/internal/audio"
	"github.com/robalobadob/tesseract/internal/config"
	"github.com/robalobadob/tesseract/internal/daily"
	"github.com/robalobadob/tesseract/internal/game"
	"github.com/robalobadob/tesseract/internal/riddle"
	"github.com/robalobadob/tesseract/internal/store"
)

// Server bundles router, live session store, and DB handle.
type Server struct {
	r      *chi.Mux
	cfg    *config.Config
	store  store.Store
	db     *sql.DB
	runs   *daily.Store
	sounds *audio.Renderer

	riddles riddle.Generator
	timing  *game.Timing
	now     func() time.Time

	mu    sync.Mutex
	feeds map[string]*feed // event buffers keyed by session ID
}

// Option customises a Server.
type Option func(*Server)

// WithRiddles sets the generator used for gate riddles. Without one every
// gate uses the fixed fallback riddles.
func WithRiddles(gen riddle.Generator) Option {
	return func(s *Server) { s.riddles = gen }
}

// WithTiming overrides the session delays (tests use short ones).
func WithTiming(t game.Timing) Option {
	return func(s *Server) { s.timing = &t }
}

// WithClock sets the wall clock used for daily dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, st store.Store, db *sql.DB, opts ...Option) *Server {
	s := &Server{
		r:      chi.NewRouter(),
		cfg:    cfg,
		store:  st,
		db:     db,
		runs:   daily.NewStore(db),
		sounds: audio.NewRenderer(),
		now:    time.Now,
		feeds:  make(map[string]*feed),
	}
	for _, o := range opts {
		o(s)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(15 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "tesseract",
			"endpoints": []string{
				"/health", "POST /game/new", "GET /game/{id}", "POST /game/{id}/interact",
				"POST /game/{id}/rotate", "POST /game/{id}/riddle", "GET /audio/{phase}/{cue}", "/auth/*",
			},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.store.Len()})
	})

	// Game endpoints: OPTIONAL AUTH (guests can play)
	s.r.With(s.withOptionalAuth()).Route("/game", s.mountGame)

	s.r.Get("/audio/{phase}/{cue}", s.handleAudio)

	// Leaderboard is public; history needs an account
	s.r.Get("/daily/leaderboard", s.handleLeaderboard)
	s.r.With(s.requireAuth()).Get("/runs/mine", s.handleMyRuns)

	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr until ctx is cancelled, pruning idle
// sessions in the background.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 10 * time.Second}

	go s.pruneLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

func (s *Server) pruneLoop(ctx context.Context) {
	idle := s.cfg.SessionIdle
	if idle <= 0 {
		return
	}
	t := time.NewTicker(idle / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.prune(ctx, s.now().Add(-idle)); n > 0 {
				log.Info().Int("sessions", n).Msg("pruned idle sessions")
			}
		}
	}
}

// prune drops idle sessions and their event feeds.
func (s *Server) prune(ctx context.Context, cutoff time.Time) int {
	ids := s.store.Prune(ctx, cutoff)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.feeds, id)
	}
	return len(ids)
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin (CLIENT_ORIGIN;
// defaults to http://localhost:5173).
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- helpers -----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decode reads a JSON body; an empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
