package match

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// MAT is the Jellyfish match format written by gnubg:
//
//	; [Player 1 "name1"]
//	; [Player 2 "name2"]
//	0 point match
//
//	Game 1
//	name1 : 0                  name2 : 0
//	 1) 31: 8/5 6/5            52: 24/22 13/8
//	                           Wins 1 point
//
// The left column belongs to player 1 (side 0), the right one to player 2.

var (
	matchLengthRE = regexp.MustCompile(`(\d+)\s+point\s+match`)
	gameHeaderRE  = regexp.MustCompile(`^Game\s+(\d+)`)
	scoreLineRE   = regexp.MustCompile(`^(.+?)\s*:\s*(\d+)\s+(.+?)\s*:\s*(\d+)`)
	moveLineRE    = regexp.MustCompile(`^\s*(\d+)\)`)
	winsRE        = regexp.MustCompile(`Wins\s+(\d+)\s+point`)
	tagRE         = regexp.MustCompile(`\[(\w+(?:\s\d)?)\s+"([^"]*)"\]`)
	columnSplitRE = regexp.MustCompile(`\s{3,}`)
	diceRE        = regexp.MustCompile(`^([1-6])([1-6]):`)
)

// matColumn is the width of the left move column.
const matColumn = 28

// ImportMAT reads a match in MAT format.
func ImportMAT(r io.Reader) (*Match, error) {
	scanner := bufio.NewScanner(r)
	m := NewMatch("", "", 0)

	var game *Game
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ";") {
			if t := tagRE.FindStringSubmatch(line); t != nil {
				applyTag(m, strings.ToLower(t[1]), t[2])
			}
			continue
		}

		if t := matchLengthRE.FindStringSubmatch(line); t != nil && game == nil {
			m.MatchLength, _ = strconv.Atoi(t[1])
			continue
		}

		if t := gameHeaderRE.FindStringSubmatch(line); t != nil {
			n, _ := strconv.Atoi(t[1])
			game = NewGame(m.Variant, n, 0, 0, false)
			m.Games = append(m.Games, game)
			continue
		}
		if game == nil {
			continue
		}

		if t := winsRE.FindStringSubmatch(line); t != nil {
			winner := 0
			if indent(raw) >= matColumn/2 {
				winner = 1
			}
			points, _ := strconv.Atoi(t[1])
			result := game.Result
			if result == ResultInProgress {
				result = ResultSingle
			}
			game.Finish(winner, points, result)
			continue
		}

		if moveLineRE.MatchString(line) {
			if err := parseMoveLineMAT(raw, game); err != nil {
				return nil, errors.Wrapf(err, "game %d", game.Number)
			}
			continue
		}

		if t := scoreLineRE.FindStringSubmatch(line); t != nil {
			if m.Player1 == "" {
				m.Player1 = strings.TrimSpace(t[1])
			}
			if m.Player2 == "" {
				m.Player2 = strings.TrimSpace(t[3])
			}
			game.Score1, _ = strconv.Atoi(t[2])
			game.Score2, _ = strconv.Atoi(t[4])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading MAT file")
	}
	return m, nil
}

func applyTag(m *Match, key, value string) {
	switch key {
	case "player 1", "player1":
		m.Player1 = value
	case "player 2", "player2":
		m.Player2 = value
	case "site", "place":
		m.Place = value
	case "event":
		m.Event = value
	case "eventdate", "date":
		m.Date = value
	case "annotator", "transcriber":
		m.Annotator = value
	case "variation":
		if v, err := engine.ParseVariant(value); err == nil {
			m.Variant = v
		}
	}
}

func indent(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

// parseMoveLineMAT reads " 1) 31: 8/5 6/5            52: 24/22 13/8". A
// line whose left column is empty starts with the right player.
func parseMoveLineMAT(raw string, game *Game) error {
	i := strings.Index(raw, ")")
	rest := raw[i+1:]
	first := 0
	if indent(rest) >= matColumn/2 {
		first = 1
	}

	halves := columnSplitRE.Split(strings.TrimSpace(rest), 2)
	for k, half := range halves {
		if err := parsePlayerMoveMAT(strings.TrimSpace(half), first+k, game); err != nil {
			return err
		}
		if first+k == 1 {
			break
		}
	}
	return nil
}

// parsePlayerMoveMAT reads one column: "31: 8/5 6/5", "31:", "Doubles => 2",
// "Takes" or "Drops".
func parsePlayerMoveMAT(text string, player int, game *Game) error {
	lower := strings.ToLower(text)
	switch {
	case text == "":
		return nil
	case strings.HasPrefix(lower, "doubles"):
		value := game.CubeValue * 2
		if i := strings.Index(text, "=>"); i >= 0 {
			if v, err := strconv.Atoi(strings.TrimSpace(text[i+2:])); err == nil {
				value = v
			}
		}
		game.AddDouble(player, value)
		return nil
	case lower == "takes":
		game.AddTake(player)
		game.CubeValue *= 2
		game.CubeOwner = player
		return nil
	case lower == "drops" || lower == "passes":
		game.AddPass(player)
		game.Finish(1-player, game.CubeValue, ResultDrop)
		return nil
	}

	d := diceRE.FindStringSubmatch(text)
	if d == nil {
		return errors.Wrapf(ErrIllegalAction, "%q", text)
	}
	d0, _ := strconv.Atoi(d[1])
	d1, _ := strconv.Atoi(d[2])
	game.AddRoll(player, d0, d1)

	notation := strings.TrimSpace(text[3:])
	if notation == "" || strings.Contains(strings.ToLower(notation), "cannot") {
		game.AddMove(player, engine.NoMove())
		return nil
	}
	move, err := ParseMove(notation)
	if err != nil {
		return err
	}
	game.AddMove(player, move)
	return nil
}

// ParseMove reads gnubg move notation from the mover's point of view:
// "8/5 6/5", "24/18*/14", "13/7(2)", "bar/22", "6/off".
func ParseMove(notation string) (engine.Move, error) {
	move := engine.NoMove()
	n := 0
	for _, part := range strings.Fields(notation) {
		count := 1
		if i := strings.Index(part, "("); i >= 0 {
			j := strings.Index(part, ")")
			if j < i {
				return move, errors.Errorf("bad repeat in %q", part)
			}
			c, err := strconv.Atoi(part[i+1 : j])
			if err != nil || c < 1 || c > 4 {
				return move, errors.Errorf("bad repeat in %q", part)
			}
			count = c
			part = part[:i]
		}

		fields := strings.Split(strings.ReplaceAll(part, "*", ""), "/")
		if len(fields) < 2 {
			return move, errors.Errorf("bad sub-move %q", part)
		}
		pts := make([]int, len(fields))
		for k, f := range fields {
			p, err := parsePoint(f)
			if err != nil {
				return move, err
			}
			pts[k] = p
		}

		for c := 0; c < count; c++ {
			for k := 0; k+1 < len(pts); k++ {
				if n == 4 {
					return move, errors.Errorf("more than four sub-moves in %q", notation)
				}
				move.From[n], move.To[n] = int8(pts[k]), int8(pts[k+1])
				n++
			}
		}
	}
	if n == 0 {
		return move, errors.Errorf("empty move %q", notation)
	}
	return move, nil
}

// parsePoint converts "1".."24", "bar" and "off" to a board slot.
func parsePoint(s string) (int, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "bar":
		return engine.Bar, nil
	case "off":
		return -1, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 24 {
		return 0, errors.Errorf("bad point %q", s)
	}
	return p - 1, nil
}

// ExportMAT writes m in MAT format.
func ExportMAT(w io.Writer, m *Match) error {
	bw := bufio.NewWriter(w)
	if m.Place != "" {
		fmt.Fprintf(bw, " ; [Site \"%s\"]\n", m.Place)
	}
	if m.Event != "" {
		fmt.Fprintf(bw, " ; [Event \"%s\"]\n", m.Event)
	}
	if m.Date != "" {
		fmt.Fprintf(bw, " ; [EventDate \"%s\"]\n", m.Date)
	}
	fmt.Fprintf(bw, " ; [Player 1 \"%s\"]\n", m.Player1)
	fmt.Fprintf(bw, " ; [Player 2 \"%s\"]\n", m.Player2)
	if m.Annotator != "" {
		fmt.Fprintf(bw, " ; [Annotator \"%s\"]\n", m.Annotator)
	}
	if m.Variant != engine.Standard {
		fmt.Fprintf(bw, " ; [Variation \"%s\"]\n", m.Variant)
	}
	fmt.Fprintf(bw, "\n %d point match\n\n", m.MatchLength)

	for _, g := range m.Games {
		if err := exportGameMAT(bw, m, g); err != nil {
			return errors.Wrapf(err, "game %d", g.Number)
		}
	}
	return errors.Wrap(bw.Flush(), "writing MAT file")
}

// matLine collects the two columns of one numbered move line.
type matLine struct {
	w    io.Writer
	n    int
	text [2]string
	set  [2]bool
}

func (l *matLine) add(player int, text string) {
	if l.set[player] || (player == 0 && l.set[1]) {
		l.flush()
	}
	l.text[player], l.set[player] = text, true
}

func (l *matLine) flush() {
	if !l.set[0] && !l.set[1] {
		return
	}
	l.n++
	width := max(matColumn, len(l.text[0])+3)
	line := fmt.Sprintf("%3d) %-*s%s", l.n, width, l.text[0], l.text[1])
	fmt.Fprintln(l.w, strings.TrimRight(line, " "))
	l.text, l.set = [2]string{}, [2]bool{}
}

func exportGameMAT(w io.Writer, m *Match, g *Game) error {
	fmt.Fprintf(w, " Game %d\n", g.Number)
	fmt.Fprintf(w, " %-*s%s : %d\n", matColumn+5, fmt.Sprintf("%s : %d", m.Player1, g.Score1), m.Player2, g.Score2)

	positions, _, err := g.Positions()
	if err != nil {
		return err
	}

	l := &matLine{w: w}
	next := 0
	var dice [2]int
	for _, a := range g.Actions {
		switch a.Type {
		case ActionRoll:
			dice = a.Dice
		case ActionMove:
			text := fmt.Sprintf("%d%d: %s", dice[0], dice[1], positions[next].Board.FormatMove(a.Move))
			next++
			l.add(a.Player, strings.TrimSpace(text))
		case ActionDouble:
			l.add(a.Player, fmt.Sprintf(" Doubles => %d", a.Value))
		case ActionTake:
			l.add(a.Player, " Takes")
		case ActionPass:
			l.add(a.Player, " Drops")
		}
	}
	l.flush()

	if g.Winner >= 0 {
		suffix := "s"
		if g.Points == 1 {
			suffix = ""
		}
		pad := 6
		if g.Winner == 1 {
			pad += matColumn
		}
		fmt.Fprintf(w, "%*sWins %d point%s\n", pad, "", g.Points, suffix)
	}
	fmt.Fprintln(w)
	return nil
}
