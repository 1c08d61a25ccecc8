// Package api serves the engine and the trainer over HTTP/JSON, Server-Sent
// Events and WebSocket.
package api

import (
	"github.com/yourusername/bgtrainer/pkg/dispatch"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/trainer"
)

// ============================================================================
// Request Types
// ============================================================================

// EvaluateRequest asks for the reward of a position for the side on roll.
type EvaluateRequest struct {
	Position string `json:"position"`        // gnubg position ID
	Agent    string `json:"agent,omitempty"` // default from ServerConfig
}

// MoveRequest asks for the legal moves of a roll, scored by an agent.
type MoveRequest struct {
	Position string `json:"position"`
	Dice     [2]int `json:"dice"`
	Agent    string `json:"agent,omitempty"`
	NumMoves int    `json:"num_moves,omitempty"` // 0 returns every move
}

// BulkMoveRequest ranks the moves of several positions at once.
type BulkMoveRequest struct {
	Requests []MoveRequest `json:"requests"`
}

// RolloutRequest asks for a Monte Carlo rollout played by an agent.
type RolloutRequest struct {
	Position string `json:"position"`
	Agent    string `json:"agent,omitempty"`
	Trials   int    `json:"trials,omitempty"`   // default 1296
	Truncate int    `json:"truncate,omitempty"` // 0 plays to the end
	Workers  int    `json:"workers,omitempty"`
}

// AnalyzeRequest reviews the games of a match file.
type AnalyzeRequest struct {
	Format string `json:"format,omitempty"` // "mat" (default) or "sgf"
	Match  string `json:"match"`            // file contents
	Agent  string `json:"agent,omitempty"`
}

// TrainRequest starts a training job.
type TrainRequest struct {
	Agents     []string `json:"agents"`
	Bench      string   `json:"bench,omitempty"`
	TrainGames int      `json:"train_games"`
	BenchGames int      `json:"bench_games,omitempty"`
	Period     int      `json:"period,omitempty"`
}

// ============================================================================
// Response Types
// ============================================================================

// Probabilities are the outcome probabilities and the cubeless equity.
type Probabilities struct {
	Win            float32 `json:"win"`
	WinGammon      float32 `json:"win_gammon"`
	WinBackgammon  float32 `json:"win_backgammon"`
	LoseGammon     float32 `json:"lose_gammon"`
	LoseBackgammon float32 `json:"lose_backgammon"`
	Equity         float32 `json:"equity"`
}

func newProbabilities(r engine.Reward) Probabilities {
	return Probabilities{
		Win:            r[engine.Win],
		WinGammon:      r[engine.WinGammon],
		WinBackgammon:  r[engine.WinBackgammon],
		LoseGammon:     r[engine.LoseGammon],
		LoseBackgammon: r[engine.LoseBackgammon],
		Equity:         r[engine.Equity],
	}
}

// EvaluateResponse is the evaluation of a position for the side on roll.
type EvaluateResponse struct {
	Position string `json:"position"`
	Agent    string `json:"agent"`
	Class    string `json:"class"`
	Pips     [2]int `json:"pips"` // side on roll first
	Probabilities
}

// MoveResponse is one scored move.
type MoveResponse struct {
	Move     string  `json:"move"`     // gnubg notation, e.g. "24/21 13/11*"
	Position string  `json:"position"` // after the move, opponent on roll
	Equity   float32 `json:"equity"`
	Win      float32 `json:"win"`
	Class    string  `json:"class"`
}

// MovesResponse lists the moves of a roll, best first.
type MovesResponse struct {
	Position string         `json:"position"`
	Dice     [2]int         `json:"dice"`
	Agent    string         `json:"agent"`
	NumLegal int            `json:"num_legal"`
	Moves    []MoveResponse `json:"moves"`
}

// BulkMoveResponse holds one entry per request, in request order.
type BulkMoveResponse struct {
	Results []BulkMoveResult `json:"results"`
}

// BulkMoveResult is either a move list or an error.
type BulkMoveResult struct {
	*MovesResponse
	Error *ErrorResponse `json:"error,omitempty"`
}

// RolloutResponse is the result of a rollout for the side on roll.
type RolloutResponse struct {
	Position string  `json:"position"`
	Agent    string  `json:"agent"`
	Trials   int     `json:"trials"`
	StdDev   float64 `json:"std_dev"`
	CI95     float64 `json:"ci_95"`
	Probabilities

	Won             int `json:"won"`
	GammonsWon      int `json:"gammons_won"`
	BackgammonsWon  int `json:"backgammons_won"`
	GammonsLost     int `json:"gammons_lost"`
	BackgammonsLost int `json:"backgammons_lost"`
}

func newRolloutResponse(position, agent string, r *dispatch.RolloutResult) *RolloutResponse {
	return &RolloutResponse{
		Position:        position,
		Agent:           agent,
		Trials:          r.Trials,
		StdDev:          r.EquityStdDev,
		CI95:            r.EquityCI,
		Probabilities:   newProbabilities(r.Reward),
		Won:             r.Won,
		GammonsWon:      r.GammonsWon,
		BackgammonsWon:  r.BackgammonsWon,
		GammonsLost:     r.GammonsLost,
		BackgammonsLost: r.BackgammonsLost,
	}
}

// AnalyzeResponse reviews every game of a match.
type AnalyzeResponse struct {
	Agent   string         `json:"agent"`
	Players [2]string      `json:"players"`
	Games   []GameAnalysis `json:"games"`
}

// GameAnalysis is the review of one game.
type GameAnalysis struct {
	Number  int            `json:"number"`
	Players [2]PlayerStats `json:"players"`
	Errors  []MoveError    `json:"errors"` // moves rated doubtful or worse
}

// PlayerStats sums up the unforced moves of one player.
type PlayerStats struct {
	Moves        int     `json:"moves"`
	Doubtful     int     `json:"doubtful"`
	Bad          int     `json:"bad"`
	VeryBad      int     `json:"very_bad"`
	TotalLoss    float32 `json:"total_loss"`
	ErrorPerMove float32 `json:"error_per_move"`
	Rating       string  `json:"rating"`
}

// MoveError is a move that gave up equity.
type MoveError struct {
	MoveNumber int     `json:"move_number"` // 1-based, counting both players
	Player     int     `json:"player"`
	Position   string  `json:"position"` // before the move, player on roll
	Dice       [2]int  `json:"dice"`
	Played     string  `json:"played"`
	Best       string  `json:"best"`
	EquityLoss float32 `json:"equity_loss"`
	Skill      string  `json:"skill"`
	SkillAbbr  string  `json:"skill_abbr"`
}

func newGameAnalysis(number int, ga *dispatch.GameAnalysis) GameAnalysis {
	out := GameAnalysis{Number: number, Errors: []MoveError{}}
	for i, p := range ga.Players {
		out.Players[i] = PlayerStats{
			Moves:        p.Moves,
			Doubtful:     p.Doubtful,
			Bad:          p.Bad,
			VeryBad:      p.VeryBad,
			TotalLoss:    p.TotalLoss,
			ErrorPerMove: p.ErrorPerMove,
			Rating:       p.Rating.String(),
		}
	}
	for i, m := range ga.Moves {
		if m.Skill == dispatch.SkillNone {
			continue
		}
		out.Errors = append(out.Errors, MoveError{
			MoveNumber: i + 1,
			Player:     m.Player,
			Position:   m.Board.ID(),
			Dice:       m.Dice,
			Played:     m.Board.FormatMove(m.Move),
			Best:       m.Board.FormatMove(m.Best),
			EquityLoss: m.Loss,
			Skill:      m.Skill.String(),
			SkillAbbr:  m.Skill.Abbr(),
		})
	}
	return out
}

// TrainJobResponse describes a training job.
type TrainJobResponse struct {
	ID     string          `json:"id"`
	State  string          `json:"state"` // "running", "done", "failed" or "cancelled"
	Error  string          `json:"error,omitempty"`
	Events []trainer.Event `json:"events,omitempty"`
}

// AgentsResponse lists the agent names accepted by every endpoint.
type AgentsResponse struct {
	Agents  []string `json:"agents"`
	Default string   `json:"default"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Ready   bool       `json:"ready"`
	Variant string     `json:"variant,omitempty"`
	Pool    *PoolStats `json:"pool,omitempty"`
	Jobs    int        `json:"jobs"` // running training jobs
}
