// internal/httpserver/routes_game.go
//
// HTTP routes for playing a session.
//   - POST /game/new                → create a session (normal or daily)
//   - GET  /game/{id}               → snapshot
//   - POST /game/{id}/interact      → click a Phase 1/2 cell
//   - POST /game/{id}/rotate        → rotate a Phase 3 fragment
//   - POST /game/{id}/select        → select a Phase 3 fragment
//   - POST /game/{id}/riddle        → answer the open riddle gate
//   - POST /game/{id}/riddle/hint   → reveal the gate hint
//   - POST /game/{id}/reset         → regenerate the current phase
//   - POST /game/{id}/mute          → toggle the presentation mute flag
//   - POST /game/{id}/tutorial      → open the controls guide / dismiss overlays
//   - GET  /game/{id}/events        → drain buffered events
//
// Sessions live in the store; each one has a feed buffering its events so
// clients can poll for the ones produced by timers and riddle requests.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tesseract/internal/daily"
	"github.com/robalobadob/tesseract/internal/game"
	"github.com/robalobadob/tesseract/internal/puzzle"
	"github.com/robalobadob/tesseract/internal/riddle"
	"github.com/robalobadob/tesseract/internal/store"
)

// feedLimit caps buffered events per session; older ones are dropped.
const feedLimit = 256

// feed buffers a session's events between polls.
type feed struct {
	mu     sync.Mutex
	events []game.Event
}

func (f *feed) push(e game.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	if over := len(f.events) - feedLimit; over > 0 {
		f.events = append(f.events[:0:0], f.events[over:]...)
	}
}

func (f *feed) drain() []game.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	if out == nil {
		out = []game.Event{}
	}
	return out
}

// owner identifies who a session's run is credited to.
type owner struct {
	UserID string
	AnonID string
}

func (o owner) key() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.AnonID
}

func (s *Server) mountGame(r chi.Router) {
	r.Post("/new", s.handleNewGame)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Get("/events", s.handleEvents)
		r.Post("/interact", s.handleInteract)
		r.Post("/rotate", s.handleRotate)
		r.Post("/select", s.handleSelect)
		r.Post("/riddle", s.handleRiddle)
		r.Post("/riddle/hint", s.handleRiddleHint)
		r.Post("/reset", s.handleReset)
		r.Post("/mute", s.handleMute)
		r.Post("/tutorial", s.handleTutorial)
	})
}

// requestOwner returns the signed-in user or the anonymous cookie ID.
func (s *Server) requestOwner(w http.ResponseWriter, r *http.Request) owner {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return owner{UserID: me.ID}
	}
	return owner{AnonID: s.ensureAnonID(w, r)}
}

// ------------------------------ /game/new ----------------------------------

type newGameReq struct {
	Mode string `json:"mode"` // "normal" | "daily"
	Seed int64  `json:"seed"` // optional; normal mode only
}

type newGameRes struct {
	GameID   string        `json:"gameId"`
	Date     string        `json:"date,omitempty"`
	Snapshot game.Snapshot `json:"snapshot"`
	Events   []game.Event  `json:"events"`
}

// handleNewGame creates a session, attaches its event feed and run
// recorder, and plays the opening narration.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.Mode == "" {
		req.Mode = "normal"
	}

	who := s.requestOwner(w, r)
	opts := game.Options{Mode: req.Mode, Seed: req.Seed, Timing: s.timing}
	var date string

	switch req.Mode {
	case "normal":
	case "daily":
		date = daily.DateKey(s.now())
		played, err := s.runs.AlreadyPlayed(r.Context(), who.key(), date)
		if err != nil {
			log.Error().Err(err).Msg("check daily played")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if played {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "already_played", "date": date})
			return
		}
		opts.Seed = daily.Seed(s.now(), s.cfg.DailySalt)
	default:
		writeError(w, http.StatusBadRequest, "bad_mode")
		return
	}

	if s.riddles != nil {
		opts.Riddles = riddle.NewSource(s.riddles)
	}
	sess := game.New(uuid.NewString(), opts)

	f := &feed{}
	sess.Subscribe(f.push)
	sess.Subscribe(s.runRecorder(sess, who, date))

	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	s.mu.Lock()
	s.feeds[sess.ID] = f
	s.mu.Unlock()

	sess.Start()
	log.Info().Str("gameId", sess.ID).Str("mode", req.Mode).Int64("seed", sess.Seed).Msg("session started")

	writeJSON(w, http.StatusOK, newGameRes{GameID: sess.ID, Date: date, Snapshot: sess.Snapshot(), Events: f.drain()})
}

// runRecorder persists the run once the session reports completion. The
// insert runs off the session goroutine.
func (s *Server) runRecorder(sess *game.Session, who owner, date string) game.Listener {
	return func(e game.Event) {
		if e.Kind != game.EventGameCompleted {
			return
		}
		day := date
		if day == "" {
			day = daily.DateKey(s.now())
		}
		run := daily.NewRun(sess.Mode, day, e.Stats)
		run.UserID, run.AnonymousID = who.UserID, who.AnonID
		go func() {
			if err := s.runs.InsertRun(context.Background(), run); err != nil {
				log.Warn().Err(err).Str("gameId", sess.ID).Msg("record run")
				return
			}
			log.Info().Str("gameId", sess.ID).Int64("totalMs", run.TotalMs).Msg("run recorded")
		}()
	}
}

// ----------------------------- session routes ------------------------------

// actionRes is returned by every mutating game route.
type actionRes struct {
	Snapshot game.Snapshot `json:"snapshot"`
	Events   []game.Event  `json:"events"`
	Ignored  bool          `json:"ignored"`
}

// session loads the {id} session, writing a 404 when it is gone.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("load session")
		}
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	return sess, true
}

func (s *Server) feedFor(id string) *feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[id]
	if !ok {
		f = &feed{}
		s.feeds[id] = f
	}
	return f
}

// respond maps a session error to a status and writes the action result.
func (s *Server) respond(w http.ResponseWriter, sess *game.Session, err error) {
	switch {
	case err == nil, errors.Is(err, game.ErrIgnored):
		writeJSON(w, http.StatusOK, actionRes{
			Snapshot: sess.Snapshot(),
			Events:   s.feedFor(sess.ID).drain(),
			Ignored:  err != nil,
		})
	case errors.Is(err, game.ErrInvalidMove):
		writeError(w, http.StatusBadRequest, "invalid_move")
	case errors.Is(err, game.ErrNoRiddle):
		writeError(w, http.StatusConflict, "no_riddle")
	case errors.Is(err, game.ErrHintLocked):
		writeError(w, http.StatusConflict, "hint_locked")
	default:
		log.Error().Err(err).Str("gameId", sess.ID).Msg("game action")
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.feedFor(sess.ID).drain()})
}

type cellReq struct {
	Face      string `json:"face"`
	Index     int    `json:"index"`
	Direction int    `json:"direction"`
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req cellReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	s.respond(w, sess, sess.Interact(puzzle.FaceKey(req.Face), req.Index))
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req cellReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	s.respond(w, sess, sess.Rotate(puzzle.FaceKey(req.Face), req.Direction))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req cellReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	s.respond(w, sess, sess.Select(puzzle.FaceKey(req.Face)))
}

type riddleReq struct {
	Answer string `json:"answer"`
}

type riddleRes struct {
	Correct  bool          `json:"correct"`
	Message  string        `json:"message,omitempty"`
	Snapshot game.Snapshot `json:"snapshot"`
	Events   []game.Event  `json:"events"`
}

func (s *Server) handleRiddle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req riddleReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	correct, msg, err := sess.SubmitRiddleAnswer(req.Answer)
	if err != nil {
		s.respond(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, riddleRes{
		Correct:  correct,
		Message:  msg,
		Snapshot: sess.Snapshot(),
		Events:   s.feedFor(sess.ID).drain(),
	})
}

func (s *Server) handleRiddleHint(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	hint, err := sess.RiddleHint()
	if err != nil {
		s.respond(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hint": hint})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, sess, sess.Reset())
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ToggleMute()
	s.respond(w, sess, nil)
}

type tutorialReq struct {
	Action string `json:"action"` // "open" | "dismiss"
}

func (s *Server) handleTutorial(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req tutorialReq
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	switch req.Action {
	case "open":
		sess.OpenControls()
	case "dismiss":
		sess.DismissTutorial()
	default:
		writeError(w, http.StatusBadRequest, "bad_action")
		return
	}
	s.respond(w, sess, nil)
}
