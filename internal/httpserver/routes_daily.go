// internal/httpserver/routes_daily.go
//
// Read-only routes over recorded runs plus the audio cue endpoint.
//   - GET /daily/leaderboard?date=YYYY-MM-DD → top 20 daily runs (default today)
//   - GET /runs/mine                         → signed-in user's runs, newest first
//   - GET /audio/{phase}/{cue}?index=N       → WAV rendering of a cue

package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tesseract/internal/audio"
	"github.com/robalobadob/tesseract/internal/daily"
)

type leaderboardRes struct {
	Date string        `json:"date"`
	Rows []daily.LBRow `json:"rows"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(s.now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_date")
		return
	}
	rows, err := s.runs.Leaderboard(r.Context(), date, 20)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, leaderboardRes{Date: date, Rows: rows})
}

func (s *Server) handleMyRuns(w http.ResponseWriter, r *http.Request) {
	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	if me == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	runs, err := s.runs.RunsForUser(r.Context(), me.ID, 50)
	if err != nil {
		log.Error().Err(err).Str("user", me.ID).Msg("runs for user")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if runs == nil {
		runs = []daily.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	phase, err := strconv.Atoi(chi.URLParam(r, "phase"))
	if err != nil || phase < 1 || phase > 3 {
		writeError(w, http.StatusBadRequest, "bad_phase")
		return
	}
	index := 0
	if v := r.URL.Query().Get("index"); v != "" {
		if index, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "bad_index")
			return
		}
	}

	b, err := s.sounds.Render(phase, chi.URLParam(r, "cue"), index)
	if err != nil {
		if errors.Is(err, audio.ErrUnknownCue) {
			writeError(w, http.StatusNotFound, "unknown_cue")
			return
		}
		log.Error().Err(err).Msg("render cue")
		writeError(w, http.StatusInternalServerError, "render_failed")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
