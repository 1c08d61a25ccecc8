package dispatch

import (
	"io"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
)

// GameRecord converts a game log to a match game.
func GameRecord(records []MoveRecord) (*match.Game, error) {
	if len(records) == 0 || records[0].Type != MoveGameInfo || records[0].Info == nil {
		return nil, errors.Wrap(ErrBadRecord, "game log without game info")
	}
	info := records[0].Info
	g := match.NewGame(info.Variant, info.Index+1, info.Score[0], info.Score[1], info.CrawfordGame)
	g.Jacoby = info.Jacoby
	g.CubeValue = 1 << info.AutoDoubles

	cube := g.CubeValue
	for _, rec := range records[1:] {
		switch rec.Type {
		case MoveNormal:
			g.AddRoll(rec.Player, rec.Dice[0], rec.Dice[1])
			g.AddMove(rec.Player, rec.Move)
		case MoveDouble:
			cube *= 2
			g.AddDouble(rec.Player, cube)
		case MoveTake:
			g.AddTake(rec.Player)
		case MoveDrop:
			g.AddPass(rec.Player)
		case MoveResign:
			g.AddResign(rec.Player, rec.Resigned)
		}
	}

	if info.Winner >= 0 {
		result := match.ResultSingle
		last := records[len(records)-1]
		switch {
		case last.Type == MoveDrop:
			result = match.ResultDrop
		case info.Resigned:
			result = match.ResultResign
		default:
			result = match.ResultFromStatus(info.Points / cube)
		}
		g.Finish(info.Winner, info.Points, result)
	}
	return g, nil
}

// Match returns the kept games, or the last game when games are not kept,
// as a money session between the agents.
func (d *Dispatcher) Match() (*match.Match, error) {
	m := match.NewMatch(d.agents[0].Name(), d.agents[1].Name(), 0)
	m.Variant = d.eng.Variant()

	logs := d.history
	if len(d.game) > 0 && (!d.opts.KeepGames || d.ms.State == StatePlaying) {
		logs = append(logs[:len(logs):len(logs)], d.game)
	}
	for i, l := range logs {
		g, err := GameRecord(l)
		if err != nil {
			return nil, errors.Wrapf(err, "game %d", i+1)
		}
		g.Number = i + 1
		m.Games = append(m.Games, g)
	}
	return m, nil
}

// ExportMAT writes the kept games in MAT format.
func (d *Dispatcher) ExportMAT(w io.Writer) error {
	m, err := d.Match()
	if err != nil {
		return err
	}
	return match.ExportMAT(w, m)
}

// Replay rebuilds the match state by applying the actions of g as move
// records. Rolls without a following move are kept as SetDice records.
func (d *Dispatcher) Replay(g *match.Game) error {
	v := d.eng.Variant()
	info := &GameInfo{
		Index:        max(g.Number-1, 0),
		Score:        [2]int{g.Score1, g.Score2},
		Crawford:     g.Crawford,
		CrawfordGame: g.Crawford,
		Jacoby:       g.Jacoby,
		Winner:       -1,
		Variant:      v,
	}
	d.ms = NewMatchState(v)
	if err := d.AddMoveRecord(MoveRecord{Type: MoveGameInfo, Info: info}); err != nil {
		return err
	}
	if g.InitialBoard != engine.InitBoard(v) {
		if err := d.AddMoveRecord(MoveRecord{Type: MoveSetBoard, Key: g.InitialBoard.Key()}); err != nil {
			return err
		}
	}

	var dice [2]int
	for i, a := range g.Actions {
		var rec MoveRecord
		switch a.Type {
		case match.ActionRoll:
			dice = a.Dice
			rec = MoveRecord{Type: MoveSetDice, Player: a.Player, Dice: dice}
		case match.ActionMove:
			rec = MoveRecord{Type: MoveNormal, Player: a.Player, Dice: dice, Move: a.Move}
		case match.ActionDouble:
			rec = MoveRecord{Type: MoveDouble, Player: a.Player}
		case match.ActionTake:
			rec = MoveRecord{Type: MoveTake, Player: a.Player}
		case match.ActionPass:
			rec = MoveRecord{Type: MoveDrop, Player: a.Player}
		case match.ActionResign:
			rec = MoveRecord{Type: MoveResign, Player: a.Player, Resigned: a.Value}
		default:
			return errors.Wrapf(ErrBadRecord, "action %d: %s", i, a.Type)
		}
		if err := d.AddMoveRecord(rec); err != nil {
			return errors.Wrapf(err, "action %d", i)
		}
	}
	return nil
}
