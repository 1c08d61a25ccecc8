package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/dispatch"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

var (
	testEngineOnce sync.Once
	testEngine     *engine.Engine
	testEngineErr  error
)

// getTestEngine returns an engine without bearoff files, which builds its
// one-sided table heuristically.
func getTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	testEngineOnce.Do(func() {
		opts := engine.DefaultEngineOptions()
		opts.DataDir = filepath.Join("testdata", "missing")
		testEngine, testEngineErr = engine.NewEngine(opts)
	})
	if testEngineErr != nil {
		t.Fatalf("NewEngine: %v", testEngineErr)
	}
	return testEngine
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BasePath = t.TempDir()
	return NewServer(getTestEngine(t), cfg, "test")
}

// do sends a request through the router.
func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	decodeBody(t, w, &e)
	return e.Code
}

func startID() string {
	return engine.InitBoard(engine.Standard).ID()
}

// lastChequer has the side on roll bearing off its last chequer before
// the opponent has borne off any.
func lastChequer() engine.Board {
	var b engine.Board
	b[engine.Self][0] = 1
	b[engine.Opponent][5] = 15
	return b
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(nil, DefaultConfig(), "test-version")
	w := do(t, s, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var health HealthResponse
	decodeBody(t, w, &health)
	if health.Status != "ok" || health.Version != "test-version" || health.Ready {
		t.Errorf("health = %+v", health)
	}
	if health.Pool == nil || health.Pool.Quick.Max != 100 || health.Pool.Heavy.Max != 4 {
		t.Errorf("pool = %+v", health.Pool)
	}

	w = do(t, newTestServer(t), "GET", "/api/health", nil)
	decodeBody(t, w, &health)
	if !health.Ready || health.Variant != "standard" {
		t.Errorf("with engine: %+v", health)
	}
}

func TestAgentsHandler(t *testing.T) {
	w := do(t, newTestServer(t), "GET", "/api/agents", nil)
	var resp AgentsResponse
	decodeBody(t, w, &resp)
	if resp.Default != "heuristic" || len(resp.Agents) != len(agent.Names()) {
		t.Errorf("agents = %+v", resp)
	}
}

func TestEvaluateHandler(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"start position", EvaluateRequest{Position: startID()}, http.StatusOK, ""},
		{"random agent", EvaluateRequest{Position: startID(), Agent: "Random"}, http.StatusOK, ""},
		{"empty position", EvaluateRequest{}, http.StatusBadRequest, "MISSING_POSITION"},
		{"invalid position", EvaluateRequest{Position: "invalid!!!"}, http.StatusBadRequest, "INVALID_POSITION"},
		{"invalid json", "not json", http.StatusBadRequest, "INVALID_JSON"},
		{"unknown agent", EvaluateRequest{Position: startID(), Agent: "nobody"}, http.StatusBadRequest, "UNKNOWN_AGENT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, "POST", "/api/evaluate", tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantCode != "" {
				if code := errorCode(t, w); code != tc.wantCode {
					t.Errorf("code = %q, want %q", code, tc.wantCode)
				}
				return
			}
			var resp EvaluateResponse
			decodeBody(t, w, &resp)
			if resp.Class != "contact" || resp.Pips != [2]int{167, 167} {
				t.Errorf("class %s pips %v", resp.Class, resp.Pips)
			}
			if resp.Win < 0 || resp.Win > 1 || resp.Equity < -3 || resp.Equity > 3 {
				t.Errorf("probabilities %+v", resp.Probabilities)
			}
		})
	}
}

func TestEvaluateSideOnRoll(t *testing.T) {
	s := newTestServer(t)
	b := lastChequer()

	w := do(t, s, "POST", "/api/evaluate", EvaluateRequest{Position: b.ID()})
	var resp EvaluateResponse
	decodeBody(t, w, &resp)
	if resp.Win < 0.99 || resp.Pips != [2]int{1, 90} {
		t.Errorf("on roll: win %f pips %v", resp.Win, resp.Pips)
	}

	w = do(t, s, "POST", "/api/evaluate", EvaluateRequest{Position: b.Swapped().ID()})
	decodeBody(t, w, &resp)
	if resp.Win > 0.01 {
		t.Errorf("not on roll: win %f", resp.Win)
	}
}

func TestMovesHandler(t *testing.T) {
	s := newTestServer(t)
	e := getTestEngine(t)

	w := do(t, s, "POST", "/api/moves", MoveRequest{Position: startID(), Dice: [2]int{3, 1}, NumMoves: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp MovesResponse
	decodeBody(t, w, &resp)
	if len(resp.Moves) != 5 || resp.NumLegal < 5 || resp.Agent != "heuristic" {
		t.Fatalf("%d of %d moves by %s", len(resp.Moves), resp.NumLegal, resp.Agent)
	}
	for i := 1; i < len(resp.Moves); i++ {
		if resp.Moves[i].Equity > resp.Moves[i-1].Equity {
			t.Errorf("move %d scores above move %d", i, i-1)
		}
	}

	b := engine.InitBoard(engine.Standard)
	ml, err := dispatch.RankMoves(e, agent.NewHeuristic(e, t.TempDir()), b, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := b.FormatMove(ml.Moves[0].Move); resp.Moves[0].Move != want {
		t.Errorf("best move %q, want %q", resp.Moves[0].Move, want)
	}
	if resp.NumLegal != len(ml.Moves) {
		t.Errorf("%d legal moves, want %d", resp.NumLegal, len(ml.Moves))
	}
	after, err := engine.BoardFromID(resp.Moves[0].Position)
	if err != nil {
		t.Fatal(err)
	}
	if after.PipCount()[engine.Opponent] != 167-4 {
		t.Errorf("pips after the move: %v", after.PipCount())
	}

	w = do(t, s, "POST", "/api/moves", MoveRequest{Position: startID(), Dice: [2]int{0, 3}})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_DICE" {
		t.Errorf("bad dice accepted: %d", w.Code)
	}
}

func TestMovesBulkHandler(t *testing.T) {
	s := newTestServer(t)
	req := BulkMoveRequest{Requests: []MoveRequest{
		{Position: startID(), Dice: [2]int{6, 5}, NumMoves: 1},
		{Position: startID(), Dice: [2]int{7, 5}},
		{Position: startID(), Dice: [2]int{2, 2}, NumMoves: 3, Agent: "random"},
	}}
	w := do(t, s, "POST", "/api/moves/bulk", req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp BulkMoveResponse
	decodeBody(t, w, &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("%d results", len(resp.Results))
	}
	if r := resp.Results[0]; r.Error != nil || r.MovesResponse == nil || len(r.Moves) != 1 || r.Dice != [2]int{6, 5} {
		t.Errorf("result 0: %+v", r)
	}
	if r := resp.Results[1]; r.Error == nil || r.Error.Code != "INVALID_DICE" {
		t.Errorf("result 1: %+v", r)
	}
	if r := resp.Results[2]; r.Error != nil || r.MovesResponse == nil || len(r.Moves) != 3 || r.Agent != "random" {
		t.Errorf("result 2: %+v", r)
	}

	w = do(t, s, "POST", "/api/moves/bulk", BulkMoveRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty bulk: status %d", w.Code)
	}
}

func TestRolloutHandler(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/rollout", RolloutRequest{Position: lastChequer().ID(), Trials: 10, Workers: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp RolloutResponse
	decodeBody(t, w, &resp)
	if resp.Trials != 10 || resp.Won != 10 || resp.GammonsWon != 10 || resp.Equity != 2 || resp.CI95 != 0 {
		t.Errorf("rollout %+v", resp)
	}

	var over engine.Board
	over[engine.Opponent][5] = 3
	tests := []struct {
		name string
		req  RolloutRequest
		code string
	}{
		{"finished game", RolloutRequest{Position: over.ID()}, "GAME_OVER"},
		{"too many trials", RolloutRequest{Position: startID(), Trials: 1 << 30}, "INVALID_TRIALS"},
		{"negative truncation", RolloutRequest{Position: startID(), Truncate: -1}, "INVALID_TRUNCATE"},
		{"unknown agent", RolloutRequest{Position: startID(), Agent: "nobody"}, "UNKNOWN_AGENT"},
	}
	for _, tc := range tests {
		w := do(t, s, "POST", "/api/rollout", tc.req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", tc.name, w.Code)
			continue
		}
		if code := errorCode(t, w); code != tc.code {
			t.Errorf("%s: code %q, want %q", tc.name, code, tc.code)
		}
	}
	if st := s.Pool().Stats().Heavy; st.Active != 0 || st.Total != 1 {
		t.Errorf("heavy lane after rollouts: %+v", st)
	}
}

func TestRolloutSSE(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/api/rollout/stream?trials=8&truncate=4&agent=random&position="+startID(), nil)
	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type %q", ct)
	}
	if !strings.Contains(body, "event: progress\ndata: ") {
		t.Errorf("no progress events:\n%s", body)
	}
	if !strings.Contains(body, "event: result\n") || !strings.HasSuffix(body, "event: done\n\n") {
		t.Errorf("stream did not finish:\n%s", body)
	}
	if !strings.Contains(body, `"trials":8`) {
		t.Errorf("result lacks the trial count:\n%s", body)
	}

	w = do(t, s, "GET", "/api/rollout/stream?trials=many&position="+startID(), nil)
	if body := w.Body.String(); !strings.HasPrefix(body, "event: error\n") || !strings.Contains(body, "INVALID_PARAMETER") {
		t.Errorf("bad trials:\n%s", body)
	}
}

func TestAnalyzeHandler(t *testing.T) {
	s := newTestServer(t)
	e := getTestEngine(t)
	dir := t.TempDir()

	d, err := dispatch.New(e, agent.NewRandom(e, dir, e.NewRNG(3)), agent.NewHeuristic(e, dir),
		dispatch.Options{Stream: 5, KeepGames: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.PlayGames(2, false); err != nil {
		t.Fatal(err)
	}
	var mat bytes.Buffer
	if err := d.ExportMAT(&mat); err != nil {
		t.Fatal(err)
	}

	w := do(t, s, "POST", "/api/analyze", AnalyzeRequest{Match: mat.String()})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp AnalyzeResponse
	decodeBody(t, w, &resp)
	if len(resp.Games) != 2 || resp.Players != [2]string{"Random", "Heuristic"} {
		t.Fatalf("%d games between %v", len(resp.Games), resp.Players)
	}
	for _, g := range resp.Games {
		for _, m := range g.Errors {
			if m.EquityLoss < dispatch.SkillThresholds[2] || m.Played == m.Best {
				t.Errorf("game %d move %d: %+v", g.Number, m.MoveNumber, m)
			}
		}
		if g.Players[0].Moves == 0 || g.Players[0].Rating == "" {
			t.Errorf("game %d: player stats %+v", g.Number, g.Players[0])
		}
	}

	w = do(t, s, "POST", "/api/analyze", AnalyzeRequest{Format: "pdf", Match: mat.String()})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_FORMAT" {
		t.Errorf("bad format: status %d", w.Code)
	}
	w = do(t, s, "POST", "/api/analyze", AnalyzeRequest{Match: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty match: status %d", w.Code)
	}
}

func TestTrainHandler(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/train", TrainRequest{
		Agents: []string{"raw-sutton"}, Bench: "random", TrainGames: 4, BenchGames: 2, Period: 2,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var job TrainJobResponse
	decodeBody(t, w, &job)
	if job.ID == "" {
		t.Fatal("no job ID")
	}

	// The stream follows the job to its end.
	w = do(t, s, "GET", "/api/train/"+job.ID+"/stream", nil)
	body := w.Body.String()
	if strings.Count(body, `"phase":"benchmark"`) != 2 {
		t.Errorf("benchmark events:\n%s", body)
	}
	if !strings.Contains(body, "event: done\ndata: ") || !strings.Contains(body, `"state":"done"`) {
		t.Errorf("stream end:\n%s", body)
	}

	w = do(t, s, "GET", "/api/train/"+job.ID, nil)
	decodeBody(t, w, &job)
	if job.State != JobDone || len(job.Events) == 0 {
		t.Fatalf("job %+v", job)
	}
	if last := job.Events[len(job.Events)-1]; last.PhaseName != "done" || last.Games != 4 {
		t.Errorf("last event %+v", last)
	}
	if st := s.Pool().Stats().Heavy; st.Active != 0 {
		t.Errorf("heavy slot kept: %+v", st)
	}

	w = do(t, s, "GET", "/api/train/train-99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status %d", w.Code)
	}
	w = do(t, s, "POST", "/api/train", TrainRequest{Bench: "random"})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_TRAINING" {
		t.Errorf("no agents: status %d", w.Code)
	}
	w = do(t, s, "POST", "/api/train", TrainRequest{Agents: []string{"nobody"}, Bench: "random"})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "UNKNOWN_AGENT" {
		t.Errorf("unknown agent: status %d", w.Code)
	}
}

func TestTrainCancel(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/train", TrainRequest{
		Agents: []string{"random"}, Bench: "random", TrainGames: 1000000, BenchGames: 2, Period: 1000000,
	})
	var job TrainJobResponse
	decodeBody(t, w, &job)

	w = do(t, s, "DELETE", "/api/train/"+job.ID, nil)
	decodeBody(t, w, &job)
	if job.State != JobCancelled {
		t.Errorf("state after cancel: %s", job.State)
	}
	if st := s.Pool().Stats().Heavy; st.Active != 0 {
		t.Errorf("heavy slot kept: %+v", st)
	}
}

func TestWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	send := func(typ, id string, payload any) WSResponse {
		t.Helper()
		raw, _ := json.Marshal(payload)
		if err := conn.WriteJSON(WSMessage{Type: typ, ID: id, Payload: raw}); err != nil {
			t.Fatal(err)
		}
		var resp WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.ID != id {
			t.Errorf("response ID %q, want %q", resp.ID, id)
		}
		return resp
	}

	if resp := send("ping", "1", nil); resp.Type != "pong" {
		t.Errorf("ping: %+v", resp)
	}
	if resp := send("evaluate", "2", EvaluateRequest{Position: lastChequer().ID()}); resp.Type != "result" {
		t.Errorf("evaluate: %+v", resp)
	} else if win := resp.Payload.(map[string]any)["win"].(float64); win < 0.99 {
		t.Errorf("evaluate: win %f", win)
	}
	if resp := send("moves", "3", MoveRequest{Position: startID(), Dice: [2]int{4, 2}, NumMoves: 2}); resp.Type != "result" {
		t.Errorf("moves: %+v", resp)
	} else if moves := resp.Payload.(map[string]any)["moves"].([]any); len(moves) != 2 {
		t.Errorf("moves: %d returned", len(moves))
	}
	if resp := send("moves", "4", MoveRequest{Position: "bad"}); resp.Type != "error" || resp.Error == nil {
		t.Errorf("bad moves: %+v", resp)
	}
	if resp := send("cube", "5", nil); resp.Type != "error" || resp.Error.Code != "UNKNOWN_TYPE" {
		t.Errorf("unknown type: %+v", resp)
	}
}
