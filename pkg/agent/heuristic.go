package agent

import "github.com/yourusername/bgtrainer/pkg/engine"

// Heuristic scores positions with a fixed formula over the mover's
// chequers: men borne off, men on the bar, blots, adjacent points and
// distance from home. Credit: Francois Rivest and Marc G. Bellemare.
type Heuristic struct {
	base
}

// NewHeuristic creates the heuristic agent.
func NewHeuristic(eng *engine.Engine, basePath string) *Heuristic {
	return &Heuristic{base: newBase(eng, basePath, "Heuristic", "heuristic")}
}

func (a *Heuristic) EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	return a.evaluate(a, b, c)
}

// HeuristicValue is the formula's value of b for the side that just moved,
// which is side 0 when the opponent is on roll.
func HeuristicValue(b engine.Board) float32 {
	points := b[engine.Opponent]

	total := 0
	for i := 0; i < 25; i++ {
		total += int(points[i])
	}

	value := float32(15-total) / 15
	value -= float32(points[engine.Bar]) / 5

	for i := 0; i < 24; i++ {
		if points[i] == 1 {
			value -= 0.10
		} else if i > 0 && points[i] >= 2 && points[i-1] >= 2 {
			value += 0.05
		}
		// pips to bear the chequer off
		dist := float32(i + 1)
		value += (12.5 - dist) * float32(points[i]) / 225
	}
	return value
}

func (a *Heuristic) evalRace(b engine.Board) (engine.Reward, error) {
	var r engine.Reward
	r[engine.Win] = HeuristicValue(b)
	return r, nil
}

func (a *Heuristic) evalCrashed(b engine.Board) (engine.Reward, error) { return a.evalRace(b) }
func (a *Heuristic) evalContact(b engine.Board) (engine.Reward, error) { return a.evalRace(b) }
