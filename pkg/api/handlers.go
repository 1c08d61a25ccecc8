package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/dispatch"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
	"github.com/yourusername/bgtrainer/pkg/trainer"
)

// apiError is an error with the HTTP status and code to report it with.
type apiError struct {
	status int
	code   string
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func (e *apiError) response() *ErrorResponse {
	return &ErrorResponse{Error: e.msg, Code: e.code}
}

func badRequest(code, msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, code: code, msg: msg}
}

// toAPIError maps an engine or agent error to an apiError.
func toAPIError(err error, code string) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	switch errors.Cause(err) {
	case agent.ErrUnknownAgent:
		return badRequest("UNKNOWN_AGENT", err.Error())
	case context.Canceled, context.DeadlineExceeded:
		return &apiError{status: http.StatusServiceUnavailable, code: "CANCELLED", msg: err.Error()}
	}
	return &apiError{status: http.StatusInternalServerError, code: code, msg: err.Error()}
}

// Handlers holds the HTTP handlers and the state they share.
type Handlers struct {
	eng     *engine.Engine
	cfg     ServerConfig
	version string
	pool    *WorkerPool
	agents  *agentSource
	jobs    *jobRegistry
}

// NewHandlers creates the handlers of a server.
func NewHandlers(e *engine.Engine, cfg ServerConfig, version string) *Handlers {
	return &Handlers{
		eng:     e,
		cfg:     cfg,
		version: version,
		pool:    NewWorkerPool(PoolConfig{QuickWorkers: cfg.QuickWorkers, HeavyWorkers: cfg.HeavyWorkers}),
		agents:  newAgentSource(e, cfg.BasePath),
		jobs:    newJobRegistry(),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apiError) {
	writeJSON(w, err.status, err.response())
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) *apiError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("INVALID_JSON", "invalid JSON: "+err.Error())
	}
	return nil
}

// quick runs f in a quick pool slot.
func (h *Handlers) quick(ctx context.Context, f func() *apiError) *apiError {
	if err := h.pool.Quick.Acquire(ctx); err != nil {
		return &apiError{status: http.StatusServiceUnavailable, code: "SERVER_BUSY", msg: "server busy"}
	}
	defer h.pool.Quick.Release()
	return f()
}

func (h *Handlers) agentName(name string) string {
	if name == "" {
		return h.cfg.DefaultAgent
	}
	return name
}

// parseBoard decodes and validates a position ID for the engine variant.
func (h *Handlers) parseBoard(id string) (engine.Board, *apiError) {
	if id == "" {
		return engine.Board{}, badRequest("MISSING_POSITION", "position is required")
	}
	b, err := engine.BoardFromID(id)
	if err != nil {
		return b, badRequest("INVALID_POSITION", "invalid position ID: "+err.Error())
	}
	if err := b.Check(h.eng.Variant()); err != nil {
		return b, badRequest("INVALID_POSITION", "illegal position: "+err.Error())
	}
	return b, nil
}

func validDice(d [2]int) bool {
	return d[0] >= 1 && d[0] <= 6 && d[1] >= 1 && d[1] <= 6
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.pool.Stats()
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Ready:   h.eng != nil,
		Pool:    &stats,
		Jobs:    h.jobs.running(),
	}
	if h.eng != nil {
		resp.Variant = h.eng.Variant().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Agents handles GET /api/agents
func (h *Handlers) Agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: agent.Names(), Default: h.cfg.DefaultAgent})
}

func (h *Handlers) evaluate(req EvaluateRequest) (*EvaluateResponse, *apiError) {
	b, aerr := h.parseBoard(req.Position)
	if aerr != nil {
		return nil, aerr
	}
	if b.GameStatus(h.eng.Variant()) > 0 {
		return nil, badRequest("GAME_OVER", "the game is over")
	}
	name := h.agentName(req.Agent)
	resp := &EvaluateResponse{Position: req.Position, Agent: name, Pips: b.PipCount()}
	resp.Pips[0], resp.Pips[1] = resp.Pips[engine.Self], resp.Pips[engine.Opponent]

	err := h.agents.use(name, func(a agent.Agent) error {
		r, class, err := dispatch.Evaluate(h.eng, a, b)
		if err != nil {
			return err
		}
		resp.Class = class.String()
		resp.Probabilities = newProbabilities(r)
		return nil
	})
	if err != nil {
		return nil, toAPIError(err, "EVAL_ERROR")
	}
	return resp, nil
}

// Evaluate handles POST /api/evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}
	var resp *EvaluateResponse
	aerr := h.quick(r.Context(), func() (aerr *apiError) {
		resp, aerr = h.evaluate(req)
		return aerr
	})
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) moves(req MoveRequest) (*MovesResponse, *apiError) {
	if !validDice(req.Dice) {
		return nil, badRequest("INVALID_DICE", "dice must be 1-6")
	}
	b, aerr := h.parseBoard(req.Position)
	if aerr != nil {
		return nil, aerr
	}
	if b.GameStatus(h.eng.Variant()) > 0 {
		return nil, badRequest("GAME_OVER", "the game is over")
	}
	name := h.agentName(req.Agent)

	var ml engine.MoveList
	err := h.agents.use(name, func(a agent.Agent) (err error) {
		ml, err = dispatch.RankMoves(h.eng, a, b, req.Dice[0], req.Dice[1])
		return err
	})
	if err != nil {
		return nil, toAPIError(err, "MOVE_ERROR")
	}

	n := len(ml.Moves)
	if req.NumMoves > 0 && req.NumMoves < n {
		n = req.NumMoves
	}
	resp := &MovesResponse{
		Position: req.Position,
		Dice:     req.Dice,
		Agent:    name,
		NumLegal: len(ml.Moves),
		Moves:    make([]MoveResponse, n),
	}
	for i, c := range ml.Moves[:n] {
		after := engine.BoardFromKey(c.Key)
		after.SwapSides()
		resp.Moves[i] = MoveResponse{
			Move:     b.FormatMove(c.Move),
			Position: after.ID(),
			Equity:   c.Score,
			Win:      c.Reward[engine.Win],
			Class:    c.Class.String(),
		}
	}
	return resp, nil
}

// Moves handles POST /api/moves
func (h *Handlers) Moves(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}
	var resp *MovesResponse
	aerr := h.quick(r.Context(), func() (aerr *apiError) {
		resp, aerr = h.moves(req)
		return aerr
	})
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// MovesBulk handles POST /api/moves/bulk. The requests run concurrently,
// each in its own quick slot; a failing request does not fail the others.
func (h *Handlers) MovesBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkMoveRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}
	switch {
	case len(req.Requests) == 0:
		writeError(w, badRequest("EMPTY_BULK", "no requests"))
		return
	case len(req.Requests) > h.cfg.MaxBulk:
		writeError(w, badRequest("BULK_TOO_LARGE", "too many requests"))
		return
	}

	results := make([]BulkMoveResult, len(req.Requests))
	var g errgroup.Group
	g.SetLimit(h.pool.Quick.Stats().Max)
	for i, mr := range req.Requests {
		i, mr := i, mr
		g.Go(func() error {
			aerr := h.quick(r.Context(), func() (aerr *apiError) {
				results[i].MovesResponse, aerr = h.moves(mr)
				return aerr
			})
			if aerr != nil {
				results[i].Error = aerr.response()
			}
			return nil
		})
	}
	g.Wait()
	writeJSON(w, http.StatusOK, BulkMoveResponse{Results: results})
}

// rolloutOptions validates a rollout request.
func (h *Handlers) rolloutOptions(req RolloutRequest) (engine.Board, dispatch.RolloutOptions, *apiError) {
	opts := dispatch.DefaultRolloutOptions()
	b, aerr := h.parseBoard(req.Position)
	if aerr != nil {
		return b, opts, aerr
	}
	if b.GameStatus(h.eng.Variant()) > 0 {
		return b, opts, badRequest("GAME_OVER", "the game is over")
	}
	switch {
	case req.Trials < 0 || req.Trials > h.cfg.MaxTrials:
		return b, opts, badRequest("INVALID_TRIALS", "trials out of range")
	case req.Truncate < 0:
		return b, opts, badRequest("INVALID_TRUNCATE", "negative truncation")
	}
	if req.Trials > 0 {
		opts.Trials = req.Trials
	}
	opts.Truncate = req.Truncate
	opts.Workers = req.Workers
	return b, opts, nil
}

func (h *Handlers) rollout(ctx context.Context, req RolloutRequest, progress func(dispatch.RolloutProgress)) (*RolloutResponse, *apiError) {
	b, opts, aerr := h.rolloutOptions(req)
	if aerr != nil {
		return nil, aerr
	}
	name := h.agentName(req.Agent)
	if _, err := h.agents.get(name); err != nil {
		return nil, toAPIError(err, "ROLLOUT_ERROR")
	}
	if err := h.pool.Heavy.Acquire(ctx); err != nil {
		return nil, &apiError{status: http.StatusServiceUnavailable, code: "SERVER_BUSY", msg: "server busy"}
	}
	defer h.pool.Heavy.Release()

	res, err := dispatch.Rollout(ctx, h.eng, func() (agent.Agent, error) { return h.agents.private(name) }, b, opts, progress)
	if err != nil {
		return nil, toAPIError(err, "ROLLOUT_ERROR")
	}
	return newRolloutResponse(req.Position, name, res), nil
}

// Rollout handles POST /api/rollout
func (h *Handlers) Rollout(w http.ResponseWriter, r *http.Request) {
	var req RolloutRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}
	resp, aerr := h.rollout(r.Context(), req, nil)
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Analyze handles POST /api/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}

	var (
		m   *match.Match
		err error
	)
	switch strings.ToLower(req.Format) {
	case "", "mat":
		m, err = match.ImportMAT(strings.NewReader(req.Match))
	case "sgf":
		m, err = match.ImportSGF(strings.NewReader(req.Match))
	default:
		writeError(w, badRequest("INVALID_FORMAT", "format must be mat or sgf"))
		return
	}
	if err != nil {
		writeError(w, badRequest("INVALID_MATCH", err.Error()))
		return
	}
	if len(m.Games) == 0 {
		writeError(w, badRequest("INVALID_MATCH", "no games"))
		return
	}

	name := h.agentName(req.Agent)
	resp := AnalyzeResponse{Agent: name, Players: [2]string{m.Player1, m.Player2}}
	aerr := h.quick(r.Context(), func() *apiError {
		err := h.agents.use(name, func(a agent.Agent) error {
			for _, g := range m.Games {
				ga, err := dispatch.AnalyzeGame(h.eng, a, g)
				if err != nil {
					return errors.Wrapf(err, "game %d", g.Number)
				}
				resp.Games = append(resp.Games, newGameAnalysis(g.Number, ga))
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Cause(err) == dispatch.ErrBadRecord || errors.Cause(err) == match.ErrIllegalAction {
			return badRequest("INVALID_MATCH", err.Error())
		}
		return toAPIError(err, "ANALYSIS_ERROR")
	})
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Train handles POST /api/train. The job keeps a heavy slot until it ends.
func (h *Handlers) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if aerr := decode(r, &req); aerr != nil {
		writeError(w, aerr)
		return
	}
	cfg := trainer.DefaultConfig()
	cfg.Agents = req.Agents
	cfg.TrainGames = req.TrainGames
	cfg.BasePath = h.cfg.BasePath
	cfg.Seed = h.eng.Options().Seed
	cfg.Out = nil
	if req.Bench != "" {
		cfg.Bench = req.Bench
	}
	if req.BenchGames > 0 {
		cfg.BenchGames = req.BenchGames
	}
	if req.Period > 0 {
		cfg.Period = req.Period
	}
	for _, name := range append([]string{cfg.Bench}, cfg.Agents...) {
		if _, err := h.agents.get(name); err != nil {
			writeError(w, toAPIError(err, "TRAIN_ERROR"))
			return
		}
	}

	t, err := trainer.New(h.eng, cfg)
	if err != nil {
		writeError(w, badRequest("INVALID_TRAINING", err.Error()))
		return
	}
	if !h.pool.Heavy.TryAcquire() {
		writeError(w, &apiError{status: http.StatusServiceUnavailable, code: "SERVER_BUSY", msg: "server busy"})
		return
	}
	j := h.jobs.start(t, h.pool.Heavy.Release)
	writeJSON(w, http.StatusAccepted, j.status(false))
}

func (h *Handlers) job(w http.ResponseWriter, r *http.Request) (*trainJob, bool) {
	j, ok := h.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, &apiError{status: http.StatusNotFound, code: "UNKNOWN_JOB", msg: "no such training job"})
	}
	return j, ok
}

// TrainStatus handles GET /api/train/{id}
func (h *Handlers) TrainStatus(w http.ResponseWriter, r *http.Request) {
	if j, ok := h.job(w, r); ok {
		writeJSON(w, http.StatusOK, j.status(true))
	}
}

// TrainCancel handles DELETE /api/train/{id}. It returns once the job has
// stopped.
func (h *Handlers) TrainCancel(w http.ResponseWriter, r *http.Request) {
	j, ok := h.job(w, r)
	if !ok {
		return
	}
	j.cancel()
	select {
	case <-j.done:
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, j.status(false))
}
