package dispatch

import (
	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
)

// Skill rates a move by the equity it gives up against the best move.
type Skill int

const (
	SkillVeryBad  Skill = iota // loses 0.12 or more
	SkillBad                   // loses 0.06 to 0.12
	SkillDoubtful              // loses 0.03 to 0.06
	SkillNone
)

// SkillThresholds are gnubg's default equity losses for the skill ratings.
var SkillThresholds = [3]float32{0.12, 0.06, 0.03}

func (s Skill) String() string {
	return [...]string{"very bad", "bad", "doubtful", "none"}[s]
}

// Abbr returns the annotation mark of s.
func (s Skill) Abbr() string {
	return [...]string{"??", "?", "?!", ""}[s]
}

// ClassifySkill rates an equity loss.
func ClassifySkill(loss float32) Skill {
	for i, t := range SkillThresholds {
		if loss >= t {
			return Skill(i)
		}
	}
	return SkillNone
}

// Rating is the overall level of play by error per move.
type Rating int

const (
	RatingAwful Rating = iota
	RatingBeginner
	RatingCasual
	RatingIntermediate
	RatingAdvanced
	RatingExpert
	RatingWorldClass
	RatingSupernatural
)

// ratingLimits are the upper error-per-move bounds, best rating first.
var ratingLimits = [...]float32{0.002, 0.005, 0.008, 0.012, 0.018, 0.026, 0.035}

func (r Rating) String() string {
	return [...]string{
		"Awful", "Beginner", "Casual player", "Intermediate",
		"Advanced", "Expert", "World class", "Supernatural",
	}[r]
}

// ClassifyRating rates an error per move.
func ClassifyRating(epm float32) Rating {
	for i, limit := range ratingLimits {
		if epm < limit {
			return RatingSupernatural - Rating(i)
		}
	}
	return RatingAwful
}

// ScoreCandidate evaluates the position after c with the opponent on roll
// and stores the reward and equity for the mover. The engine sanity check
// runs for agents that support it outside learn mode.
func ScoreCandidate(eng *engine.Engine, a agent.Agent, c *engine.Candidate) error {
	b := engine.BoardFromKey(c.Key)
	b.SwapSides()

	r, class, err := a.EvaluatePosition(b, eng.Classify(b))
	if err != nil {
		return errors.Wrapf(err, "agent %s", a.Name())
	}
	if class > engine.ClassBearoffTS && a.SupportsSanityCheck() && !a.IsLearnMode() {
		eng.SanityCheck(b, &r)
	}
	r[engine.Equity] = r.Utility()

	// Exact evaluators score for the side on roll.
	if a.NeedsInvertedEval() || (class != engine.ClassContact && class != engine.ClassCrashed && class != engine.ClassRace) {
		r.Invert()
	}
	c.Reward, c.Class, c.Score = r, class, r[engine.Equity]
	return nil
}

// RankMoves scores every legal move of d0-d1 from b with a, best first.
func RankMoves(eng *engine.Engine, a agent.Agent, b engine.Board, d0, d1 int) (engine.MoveList, error) {
	ml := b.GenerateMoves(d0, d1, false)
	a.SetCurrentBoard(b)
	for i := range ml.Moves {
		if err := ScoreCandidate(eng, a, &ml.Moves[i]); err != nil {
			return ml, err
		}
	}
	ml.Sort()
	return ml, nil
}

// Evaluate returns the reward of b for the side on roll.
func Evaluate(eng *engine.Engine, a agent.Agent, b engine.Board) (engine.Reward, engine.PositionClass, error) {
	c := engine.Candidate{Key: b.Swapped().Key()}
	a.SetCurrentBoard(b)
	if err := ScoreCandidate(eng, a, &c); err != nil {
		return engine.Reward{}, engine.ClassOver, err
	}
	return c.Reward.Inverted(), c.Class, nil
}

// MoveAnalysis compares a played move with the best move of the agent.
type MoveAnalysis struct {
	Player     int
	Board      engine.Board // before the move, Player on roll
	Dice       [2]int
	Move       engine.Move
	Best       engine.Move
	Equity     float32 // of the played move
	BestEquity float32
	Loss       float32
	Skill      Skill
	Forced     bool // at most one legal move
}

// PlayerAnalysis sums up the moves of one player.
type PlayerAnalysis struct {
	Moves        int // unforced moves
	Doubtful     int
	Bad          int
	VeryBad      int
	TotalLoss    float32
	ErrorPerMove float32
	Rating       Rating
}

// GameAnalysis is the move by move review of a game.
type GameAnalysis struct {
	Moves   []MoveAnalysis
	Players [2]PlayerAnalysis
}

// AnalyzeGame reviews every move of g with a. The agent is taken out of
// learn mode.
func AnalyzeGame(eng *engine.Engine, a agent.Agent, g *match.Game) (*GameAnalysis, error) {
	positions, _, err := g.Positions()
	if err != nil {
		return nil, err
	}
	a.SetLearnMode(false)
	a.StartGame(eng.Variant())
	defer a.EndGame()

	ga := &GameAnalysis{Moves: make([]MoveAnalysis, 0, len(positions))}
	for i, p := range positions {
		if p.Dice[0] == 0 {
			return nil, errors.Wrapf(ErrBadRecord, "move %d without a roll", i+1)
		}
		ml, err := RankMoves(eng, a, p.Board, p.Dice[0], p.Dice[1])
		if err != nil {
			return nil, errors.Wrapf(err, "move %d", i+1)
		}

		ma := MoveAnalysis{Player: p.Player, Board: p.Board, Dice: p.Dice, Move: p.Move, Best: engine.NoMove(), Forced: len(ml.Moves) <= 1}
		if len(ml.Moves) == 0 {
			if p.Move.Len() != 0 {
				return nil, errors.Wrapf(ErrBadRecord, "move %d: %s played without a legal move", i+1, p.Board.FormatMove(p.Move))
			}
			ga.Moves = append(ga.Moves, ma)
			continue
		}

		after := p.Board
		if err := after.ApplyMove(p.Move, false); err != nil {
			return nil, errors.Wrapf(ErrBadRecord, "move %d: %v", i+1, err)
		}
		played := -1
		for k := range ml.Moves {
			if ml.Moves[k].Key == after.Key() {
				played = k
				break
			}
		}
		if played < 0 {
			return nil, errors.Wrapf(ErrBadRecord, "move %d: %d%d %s is not legal", i+1, p.Dice[0], p.Dice[1], p.Board.FormatMove(p.Move))
		}

		best := ml.Moves[0]
		ma.Best, ma.BestEquity = best.Move, best.Score
		ma.Equity = ml.Moves[played].Score
		ma.Loss = ma.BestEquity - ma.Equity
		ma.Skill = ClassifySkill(ma.Loss)
		ga.Moves = append(ga.Moves, ma)

		if ma.Forced {
			continue
		}
		pa := &ga.Players[p.Player]
		pa.Moves++
		pa.TotalLoss += ma.Loss
		switch ma.Skill {
		case SkillDoubtful:
			pa.Doubtful++
		case SkillBad:
			pa.Bad++
		case SkillVeryBad:
			pa.VeryBad++
		}
	}

	for i := range ga.Players {
		pa := &ga.Players[i]
		if pa.Moves > 0 {
			pa.ErrorPerMove = pa.TotalLoss / float32(pa.Moves)
		}
		pa.Rating = ClassifyRating(pa.ErrorPerMove)
	}
	return ga, nil
}
