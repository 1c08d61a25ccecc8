package dispatch

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// AddMoveRecord checks rec, appends it to the game log and applies it to
// the match state. A Normal record replaces the SetDice record of the same
// player just before it.
func (d *Dispatcher) AddMoveRecord(rec MoveRecord) error {
	if err := checkRecord(&rec); err != nil {
		return err
	}
	if rec.Type != MoveGameInfo && (len(d.game) == 0 || d.game[0].Type != MoveGameInfo) {
		return errors.Wrapf(ErrBadRecord, "%s record before the game info", rec.Type)
	}
	if rec.Type == MoveGameInfo {
		d.game = nil
	}

	if n := len(d.game); n > 0 && rec.Type == MoveNormal {
		if last := d.game[n-1]; last.Type == MoveSetDice && last.Player == rec.Player {
			d.game = d.game[:n-1]
		}
	}

	d.fixMatchState(&rec)
	d.game = append(d.game, rec)
	return d.ApplyMoveRecord(&rec)
}

func checkRecord(rec *MoveRecord) error {
	if rec.Player < 0 || rec.Player > 1 {
		return errors.Wrapf(ErrBadRecord, "player %d", rec.Player)
	}
	switch rec.Type {
	case MoveGameInfo:
		g := rec.Info
		if g == nil {
			return errors.Wrap(ErrBadRecord, "game info without data")
		}
		if g.MatchTo < 0 || g.Index < 0 {
			return errors.Wrapf(ErrBadRecord, "game %d of match to %d", g.Index, g.MatchTo)
		}
		if g.MatchTo > 0 && (g.Score[0] >= g.MatchTo || g.Score[1] >= g.MatchTo) {
			return errors.Wrapf(ErrBadRecord, "score %v in match to %d", g.Score, g.MatchTo)
		}
		if !g.Crawford && g.CrawfordGame {
			return errors.Wrap(ErrBadRecord, "Crawford game without the Crawford rule")
		}
	case MoveNormal, MoveSetDice:
		for _, die := range rec.Dice {
			if die < 1 || die > 6 {
				return errors.Wrapf(ErrBadRecord, "%s with dice %v", rec.Type, rec.Dice)
			}
		}
	case MoveDouble, MoveTake, MoveDrop, MoveResign, MoveSetBoard, MoveSetCubeVal, MoveSetCubePos:
	default:
		return errors.Wrapf(ErrBadRecord, "type %d", int(rec.Type))
	}
	return nil
}

// fixMatchState turns the board to the player of a Normal or Double
// record whose preceding record is missing.
func (d *Dispatcher) fixMatchState(rec *MoveRecord) {
	switch rec.Type {
	case MoveNormal, MoveDouble:
		if d.ms.Turn != rec.Player {
			d.ms.Board.SwapSides()
			d.ms.Move, d.ms.Turn = rec.Player, rec.Player
		}
	}
}

// ApplyMoveRecord changes the match state as rec says. Results are written
// to the game info at the head of the log.
func (d *Dispatcher) ApplyMoveRecord(rec *MoveRecord) error {
	ms := &d.ms
	info := rec.Info
	if rec.Type != MoveGameInfo {
		info = d.game[0].Info
	}

	ms.State = StatePlaying
	ms.Resigned, ms.ResignationDeclined = 0, 0

	switch rec.Type {
	case MoveGameInfo:
		ms.Board = engine.InitBoard(info.Variant)
		ms.MatchTo = info.MatchTo
		ms.Score = info.Score
		ms.Games = info.Index
		ms.State = StateNone
		ms.Move, ms.Turn, ms.CubeOwner = -1, -1, -1
		ms.Dice = [2]int{}
		ms.Beavers = 0
		ms.Doubled = false
		ms.Cube = 1 << info.AutoDoubles
		ms.Crawford = info.CrawfordGame
		ms.PostCrawford = !ms.Crawford && (ms.Score[0] == ms.MatchTo-1 || ms.Score[1] == ms.MatchTo-1)
		ms.Variant = info.Variant
		ms.CubeUse = info.CubeUse
		ms.Jacoby = info.Jacoby

	case MoveDouble:
		if ms.Move < 0 {
			ms.Move = rec.Player
		}
		if ms.Doubled {
			ms.Beavers++
			ms.Cube <<= 1
			ms.CubeOwner = 1 - ms.Move
		} else {
			ms.Doubled = true
		}
		ms.Turn = 1 - rec.Player

	case MoveTake:
		if !ms.Doubled {
			break
		}
		ms.Cube <<= 1
		ms.Beavers = 0
		ms.Doubled = false
		ms.CubeOwner = 1 - ms.Move
		ms.Turn = ms.Move

	case MoveDrop:
		if !ms.Doubled {
			break
		}
		ms.Doubled = false
		ms.Beavers = 0
		ms.State = StateDropped
		info.Points = ms.Cube
		info.Winner = 1 - rec.Player
		info.Resigned = false
		d.applyGameOver(info)

	case MoveNormal:
		ms.Doubled = false
		if err := d.playMove(rec.Move, rec.Player); err != nil {
			return err
		}
		ms.Dice = [2]int{}

		if n := ms.Board.GameStatus(ms.Variant); n > 0 {
			if ms.Jacoby && ms.CubeOwner == -1 && ms.MatchTo == 0 {
				n = 1
			}
			ms.State = StateOver
			info.Points = ms.Cube * n
			info.Winner = rec.Player
			info.Resigned = false
			d.applyGameOver(info)
		}

	case MoveResign:
		ms.State = StateResigned
		ms.Resigned = rec.Resigned
		info.Points = ms.Cube * rec.Resigned
		info.Winner = 1 - rec.Player
		info.Resigned = true
		d.applyGameOver(info)

	case MoveSetBoard:
		ms.Board = engine.BoardFromKey(rec.Key)
		if ms.Move < 0 {
			ms.Move, ms.Turn = 0, 0
		}
		if ms.Move != 0 {
			ms.Board.SwapSides()
		}

	case MoveSetDice:
		ms.Dice = rec.Dice
		if ms.Move != rec.Player {
			ms.Board.SwapSides()
		}
		ms.Move, ms.Turn = rec.Player, rec.Player
		ms.Doubled = false

	case MoveSetCubeVal:
		if ms.Move < 0 {
			ms.Move = 0
		}
		ms.Cube = rec.Cube
		ms.Doubled = false
		ms.Turn = ms.Move

	case MoveSetCubePos:
		if ms.Move < 0 {
			ms.Move = 0
		}
		ms.CubeOwner = rec.CubeOwner
		ms.Doubled = false
		ms.Turn = ms.Move
	}
	return nil
}

func (d *Dispatcher) applyGameOver(info *GameInfo) {
	if info.Winner < 0 {
		return
	}
	d.ms.Score[info.Winner] += info.Points
	d.ms.Games++
	log.Debug().Int("winner", info.Winner).Int("points", info.Points).Msg("game finished")
	if d.opts.ShowLog {
		n := min(max(d.ms.Board.GameStatus(d.ms.Variant), 1), 3)
		fmt.Fprintf(d.opts.Out, "\nEnd Game done.\n%c:%s wins a %s and %d point(s)\n",
			signs[info.Winner], d.agents[info.Winner].Name(), gameResults[n-1], info.Points)
	}
}

// playMove moves the chequers of player, hitting every opposing chequer on
// a destination point. Empty sources are skipped. Afterwards the board is
// turned to the other player.
func (d *Dispatcher) playMove(m engine.Move, player int) error {
	ms := &d.ms
	if ms.Move != -1 && player != ms.Move {
		ms.Board.SwapSides()
	}
	b := &ms.Board
	for i := 0; i < 4; i++ {
		src, dest := int(m.From[i]), int(m.To[i])
		if src < 0 {
			break
		}
		if src > engine.Bar || dest > engine.Bar {
			return errors.Wrapf(ErrBadRecord, "sub-move %d/%d", src, dest)
		}
		if b[engine.Self][src] == 0 {
			continue
		}
		b[engine.Self][src]--
		if dest >= 0 {
			b[engine.Self][dest]++
		}
		if dest >= 0 && dest <= 23 {
			b[engine.Opponent][engine.Bar] += b[engine.Opponent][23-dest]
			b[engine.Opponent][23-dest] = 0
		}
	}
	ms.Move, ms.Turn = 1-player, 1-player
	ms.Board.SwapSides()
	return nil
}
