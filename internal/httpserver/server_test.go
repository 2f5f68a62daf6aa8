package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tesseract/internal/config"
	"github.com/robalobadob/tesseract/internal/database"
	"github.com/robalobadob/tesseract/internal/game"
	"github.com/robalobadob/tesseract/internal/puzzle"
	"github.com/robalobadob/tesseract/internal/store"
)

var fastTiming = game.Timing{
	FirstVictoryDelay:  time.Millisecond,
	VictoryDelay:       time.Millisecond,
	SolveDelay:         time.Millisecond,
	TransitionDuration: time.Millisecond,
	BriefingDelay:      time.Hour,
	GuideFollowUp:      time.Hour,
	RiddleTimeout:      time.Second,
}

var testDay = time.Date(2024, 6, 2, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		CookieName:     "tesseract_token",
		JWTExpiresDays: 14,
		DailySalt:      "test_salt",
		RiddleTimeout:  time.Second,
	}
	srv := New(cfg, store.NewMemoryStore(), db,
		WithTiming(fastTiming),
		WithClock(func() time.Time { return testDay }),
	)
	return srv, db
}

func do(t *testing.T, srv *Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type wireSnapshot struct {
	ID       string          `json:"id"`
	Phase    int             `json:"phase"`
	Status   string          `json:"status"`
	Moves    int             `json:"moves"`
	Muted    bool            `json:"muted"`
	State    json.RawMessage `json:"state"`
	Tutorial *struct {
		Kind string `json:"kind"`
	} `json:"tutorial"`
}

type wireAction struct {
	Snapshot wireSnapshot `json:"snapshot"`
	Events   []struct {
		Kind string `json:"kind"`
	} `json:"events"`
	Ignored bool `json:"ignored"`
}

func newGame(t *testing.T, srv *Server, body string, cookies ...*http.Cookie) (string, *httptest.ResponseRecorder) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/game/new", body, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[struct {
		GameID string `json:"gameId"`
	}](t, rec)
	require.NotEmpty(t, res.GameID)
	return res.GameID, rec
}

func TestHealthAndNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestNewGameAndInteract(t *testing.T) {
	srv, _ := newTestServer(t)
	id, rec := newGame(t, srv, `{"mode":"normal","seed":42}`)

	created := decodeBody[struct {
		Snapshot wireSnapshot `json:"snapshot"`
		Events   []struct {
			Kind string `json:"kind"`
		} `json:"events"`
	}](t, rec)
	assert.Equal(t, 1, created.Snapshot.Phase)
	assert.Equal(t, "playing", created.Snapshot.Status)
	assert.NotEmpty(t, created.Events)

	var anon *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == anonCookieName {
			anon = c
		}
	}
	require.NotNil(t, anon)

	rec = do(t, srv, http.MethodPost, "/game/"+id+"/interact", `{"face":"front","index":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	act := decodeBody[wireAction](t, rec)
	assert.False(t, act.Ignored)
	assert.Equal(t, 1, act.Snapshot.Moves)
	kinds := make([]string, 0, len(act.Events))
	for _, e := range act.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, string(game.EventCellInteracted))

	rec = do(t, srv, http.MethodGet, "/game/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[wireSnapshot](t, rec).Moves)

	rec = do(t, srv, http.MethodGet, "/game/"+id+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestGameErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	id, _ := newGame(t, srv, "")

	cases := []struct {
		path, body string
		status     int
		code       string
	}{
		{"/game/" + id + "/interact", `{"face":"middle","index":0}`, http.StatusBadRequest, "invalid_move"},
		{"/game/" + id + "/interact", `{"face":"front","index":9}`, http.StatusBadRequest, "invalid_move"},
		{"/game/" + id + "/rotate", `{"face":"front","direction":1}`, http.StatusBadRequest, "invalid_move"},
		{"/game/" + id + "/riddle", `{"answer":"light"}`, http.StatusConflict, "no_riddle"},
		{"/game/" + id + "/riddle/hint", ``, http.StatusConflict, "no_riddle"},
		{"/game/" + id + "/tutorial", `{"action":"dance"}`, http.StatusBadRequest, "bad_action"},
		{"/game/" + id + "/interact", `{not json`, http.StatusBadRequest, "bad_json"},
		{"/game/missing/interact", `{"face":"front","index":0}`, http.StatusNotFound, "not_found"},
		{"/game/new", `{"mode":"cheat"}`, http.StatusBadRequest, "bad_mode"},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, tc.status, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), tc.code, tc.path)
	}
}

func TestTutorialAndMute(t *testing.T) {
	srv, _ := newTestServer(t)
	id, _ := newGame(t, srv, "")

	rec := do(t, srv, http.MethodPost, "/game/"+id+"/tutorial", `{"action":"open"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	act := decodeBody[wireAction](t, rec)
	require.NotNil(t, act.Snapshot.Tutorial)
	assert.Equal(t, "controls", act.Snapshot.Tutorial.Kind)

	rec = do(t, srv, http.MethodPost, "/game/"+id+"/tutorial", `{"action":"dismiss"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[wireAction](t, rec).Snapshot.Tutorial)

	rec = do(t, srv, http.MethodPost, "/game/"+id+"/mute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[wireAction](t, rec).Snapshot.Muted)
}

func TestAudioRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/audio/2/victory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF", rec.Body.String()[:4])

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/audio/1/click?index=3", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/audio/1/kazoo", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/audio/7/click", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/audio/1/click?index=x", "").Code)
}

func TestAuthFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/auth/signup", `{"username":"keeper","password":"hunter2hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "tesseract_token" {
			token = c
		}
	}
	require.NotNil(t, token)

	rec = do(t, srv, http.MethodPost, "/auth/signup", `{"username":"KEEPER","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/auth/signup", `{"username":"x","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/auth/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "keeper", decodeBody[userRow](t, rec).Username)

	rec = do(t, srv, http.MethodGet, "/runs/mine", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/auth/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, srv, http.MethodPost, "/auth/login", `{"username":"keeper","password":"wrongwrong"}`).Code)
	assert.Equal(t, http.StatusOK,
		do(t, srv, http.MethodPost, "/auth/login", `{"username":"keeper","password":"hunter2hunter2"}`).Code)

	bad := &http.Cookie{Name: "tesseract_token", Value: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/auth/me", "", bad).Code)
}

// playThrough drives a session to completion through its API, answering
// every gate with the fallback riddle's answer.
func playThrough(t *testing.T, sess *game.Session) {
	t.Helper()
	answers := map[int]string{1: "light", 2: "pair"}

	for phase := 1; phase <= 3; phase++ {
		require.Eventually(t, func() bool {
			return sess.Phase() == phase && sess.Status() == game.StatusPlaying
		}, 2*time.Second, 2*time.Millisecond)

		switch st := sess.Snapshot().State.(type) {
		case puzzle.PhaseOneState:
			for _, face := range puzzle.FaceKeys {
				for i := 1; i < puzzle.PhaseOneCells; i++ {
					for {
						cur := sess.Snapshot().State.(puzzle.PhaseOneState)
						if cur.Faces[face][i] == cur.Faces[face][0] {
							break
						}
						require.NoError(t, sess.Interact(face, i))
					}
				}
			}
		case puzzle.PhaseTwoState:
			for _, face := range puzzle.FaceKeys {
				for i, want := range puzzle.PhaseTwoTargets[face] {
					for {
						cur := sess.Snapshot().State.(puzzle.PhaseTwoState)
						if cur.Faces[face][i] == want {
							break
						}
						require.NoError(t, sess.Interact(face, i))
					}
				}
			}
		case puzzle.PhaseThreeState:
			for _, f := range st.Fragments {
				if d := f.Target - f.Orientation; d != 0 {
					require.NoError(t, sess.Rotate(f.Key, d))
				}
			}
		}

		if phase == 3 {
			break
		}
		require.Eventually(t, func() bool { return sess.Status() == game.StatusRiddleOpen }, 2*time.Second, 2*time.Millisecond)
		ok, _, err := sess.SubmitRiddleAnswer(answers[phase])
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, game.StatusComplete, sess.Status())
}

func TestDailyRunIsRecorded(t *testing.T) {
	srv, db := newTestServer(t)

	id, rec := newGame(t, srv, `{"mode":"daily"}`)
	cookies := rec.Result().Cookies()
	require.Contains(t, rec.Body.String(), `"date":"2024-06-02"`)

	sess, err := srv.store.Get(context.Background(), id)
	require.NoError(t, err)
	playThrough(t, sess)

	require.Eventually(t, func() bool {
		var n int
		_ = db.QueryRow(`SELECT COUNT(1) FROM runs WHERE mode='daily'`).Scan(&n)
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec = do(t, srv, http.MethodGet, "/daily/leaderboard?date=2024-06-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lb := decodeBody[leaderboardRes](t, rec)
	require.Len(t, lb.Rows, 1)
	assert.Equal(t, "anonymous", lb.Rows[0].Player)
	assert.Positive(t, lb.Rows[0].TotalMoves)

	// the same guest cannot replay today's cube
	rec = do(t, srv, http.MethodPost, "/game/new", `{"mode":"daily"}`, cookies...)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_played")

	// signing up claims the guest run
	rec = do(t, srv, http.MethodPost, "/auth/signup", `{"username":"keeper","password":"hunter2hunter2"}`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	var token *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "tesseract_token" {
			token = c
		}
	}
	require.NotNil(t, token)

	rec = do(t, srv, http.MethodGet, "/runs/mine", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]json.RawMessage](t, rec), 1)

	rec = do(t, srv, http.MethodGet, "/daily/leaderboard?date=2024-06-02", "")
	assert.Equal(t, "keeper", decodeBody[leaderboardRes](t, rec).Rows[0].Player)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/daily/leaderboard?date=june", "").Code)
}

func TestPruneDropsFeeds(t *testing.T) {
	srv, _ := newTestServer(t)
	id, _ := newGame(t, srv, "")
	created := time.Now()

	// an early pass keeps the session without refreshing it
	assert.Zero(t, srv.prune(context.Background(), created.Add(-time.Hour)))
	srv.mu.Lock()
	assert.Contains(t, srv.feeds, id)
	srv.mu.Unlock()

	assert.Equal(t, 1, srv.prune(context.Background(), created.Add(time.Hour)))
	assert.Zero(t, srv.store.Len())
	srv.mu.Lock()
	_, ok := srv.feeds[id]
	srv.mu.Unlock()
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/game/"+id, "").Code)
}
