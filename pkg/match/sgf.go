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

// SGF backgammon records (https://www.red-bean.com/sgf/backgammon.html):
//
//	(;FF[4]GM[6]AP[bgtrainer]PW[name1]PB[name2]MI[length:0][game:0][ws:0][bs:0]
//	;W[31hefe]
//	;B[52...])
//
// White is player 1 (side 0). Points are lettered from White's side:
// White's slot i is 'x'-i, Black's slot i is 'a'+i; 'y' is the bar and 'z'
// off.

var (
	sgfPropertyRE = regexp.MustCompile(`([A-Z]+)((?:\[[^\]]*\])+)`)
	sgfValueRE    = regexp.MustCompile(`\[([^\]]*)\]`)
	sgfResultRE   = regexp.MustCompile(`^([WB])\+(\d+)`)
)

// ImportSGF reads a match of one or more SGF game trees.
func ImportSGF(r io.Reader) (*Match, error) {
	var content strings.Builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		content.WriteString(scanner.Text())
		content.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading SGF file")
	}

	m := NewMatch("", "", 0)
	for i, tree := range splitSGFGames(content.String()) {
		if i == 0 {
			extractMatchInfo(tree, m)
		}
		g, err := parseSGFGame(tree, m.Variant, i+1)
		if err != nil {
			return nil, errors.Wrapf(err, "game %d", i+1)
		}
		m.Games = append(m.Games, g)
	}
	return m, nil
}

// splitSGFGames returns the top-level parenthesised game trees.
func splitSGFGames(content string) []string {
	var games []string
	depth, start := 0, -1
	for i, ch := range content {
		switch ch {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				games = append(games, content[start:i+1])
				start = -1
			}
		}
	}
	return games
}

// sgfProperties maps each property of a node to its values.
func sgfProperties(node string) map[string][]string {
	props := make(map[string][]string)
	for _, p := range sgfPropertyRE.FindAllStringSubmatch(node, -1) {
		for _, v := range sgfValueRE.FindAllStringSubmatch(p[2], -1) {
			props[p[1]] = append(props[p[1]], v[1])
		}
	}
	return props
}

func firstValue(props map[string][]string, key string) (string, bool) {
	v, ok := props[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func extractMatchInfo(tree string, m *Match) {
	root := tree
	if i := strings.Index(tree[2:], ";"); i >= 0 {
		root = tree[:i+2]
	}
	props := sgfProperties(root)

	fields := map[string]*string{
		"PW": &m.Player1, "PB": &m.Player2, "DT": &m.Date,
		"EV": &m.Event, "PC": &m.Place, "AN": &m.Annotator, "GC": &m.Comment,
	}
	for key, dst := range fields {
		if v, ok := firstValue(props, key); ok {
			*dst = v
		}
	}
	for _, mi := range props["MI"] {
		if kv := strings.SplitN(mi, ":", 2); len(kv) == 2 && kv[0] == "length" {
			m.MatchLength, _ = strconv.Atoi(kv[1])
		}
	}
	if ru, ok := firstValue(props, "RU"); ok {
		if v, err := engine.ParseVariant(ru); err == nil {
			m.Variant = v
		}
	}
}

func parseSGFGame(tree string, v engine.Variant, number int) (*Game, error) {
	g := NewGame(v, number, 0, 0, false)
	nodes := strings.Split(strings.Trim(tree, "()\n "), ";")

	for _, node := range nodes[1:] {
		props := sgfProperties(node)
		for _, mi := range props["MI"] {
			kv := strings.SplitN(mi, ":", 2)
			if len(kv) != 2 {
				continue
			}
			n, _ := strconv.Atoi(kv[1])
			switch kv[0] {
			case "game":
				g.Number = n + 1
			case "ws":
				g.Score1 = n
			case "bs":
				g.Score2 = n
			}
		}
		if re, ok := firstValue(props, "RE"); ok {
			if r := sgfResultRE.FindStringSubmatch(re); r != nil {
				points, _ := strconv.Atoi(r[2])
				winner := 0
				if r[1] == "B" {
					winner = 1
				}
				g.Finish(winner, points, ResultSingle)
			}
		}

		for player, key := range [2]string{"W", "B"} {
			val, ok := firstValue(props, key)
			if !ok {
				continue
			}
			if err := parseSGFAction(g, player, val); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// parseSGFAction reads a move value "31hefe", "double", "take" or "drop".
func parseSGFAction(g *Game, player int, val string) error {
	switch val {
	case "double":
		g.AddDouble(player, g.CubeValue*2)
		return nil
	case "take":
		g.AddTake(player)
		g.CubeValue *= 2
		g.CubeOwner = player
		return nil
	case "drop":
		g.AddPass(player)
		g.Finish(1-player, g.CubeValue, ResultDrop)
		return nil
	}

	if len(val) < 2 || val[0] < '1' || val[0] > '6' || val[1] < '1' || val[1] > '6' {
		return errors.Wrapf(ErrIllegalAction, "%q", val)
	}
	g.AddRoll(player, int(val[0]-'0'), int(val[1]-'0'))

	move := engine.NoMove()
	pts := val[2:]
	if len(pts)%2 != 0 || len(pts) > 8 {
		return errors.Wrapf(ErrIllegalAction, "%q", val)
	}
	for i := 0; i < len(pts); i += 2 {
		from, err := sgfSlot(pts[i], player)
		if err != nil {
			return err
		}
		to, err := sgfSlot(pts[i+1], player)
		if err != nil {
			return err
		}
		move.From[i/2], move.To[i/2] = int8(from), int8(to)
	}
	g.AddMove(player, move)
	return nil
}

// sgfSlot converts an SGF point letter to a slot of player.
func sgfSlot(ch byte, player int) (int, error) {
	switch {
	case ch == 'y':
		return engine.Bar, nil
	case ch == 'z':
		return -1, nil
	case ch >= 'a' && ch <= 'x':
		if player == 0 {
			return int('x' - ch), nil
		}
		return int(ch - 'a'), nil
	}
	return 0, errors.Errorf("bad SGF point %q", ch)
}

// sgfLetter is the inverse of sgfSlot.
func sgfLetter(slot, player int) byte {
	switch {
	case slot == engine.Bar:
		return 'y'
	case slot < 0:
		return 'z'
	case player == 0:
		return byte('x' - slot)
	}
	return byte('a' + slot)
}

// ExportSGF writes every game of m as its own game tree.
func ExportSGF(w io.Writer, m *Match) error {
	bw := bufio.NewWriter(w)
	for _, g := range m.Games {
		exportGameSGF(bw, m, g)
	}
	return errors.Wrap(bw.Flush(), "writing SGF file")
}

func exportGameSGF(w io.Writer, m *Match, g *Game) {
	fmt.Fprintf(w, "(;FF[4]GM[6]CA[UTF-8]AP[bgtrainer]\n")
	fmt.Fprintf(w, "PW[%s]PB[%s]\n", m.Player1, m.Player2)
	fmt.Fprintf(w, "MI[length:%d][game:%d][ws:%d][bs:%d]\n", m.MatchLength, g.Number-1, g.Score1, g.Score2)
	if m.Variant != engine.Standard {
		fmt.Fprintf(w, "RU[%s]\n", m.Variant)
	}
	for _, p := range [][2]string{{"DT", m.Date}, {"EV", m.Event}, {"PC", m.Place}} {
		if p[1] != "" {
			fmt.Fprintf(w, "%s[%s]\n", p[0], p[1])
		}
	}
	if g.Winner >= 0 {
		fmt.Fprintf(w, "RE[%c+%d]\n", "WB"[g.Winner], g.Points)
	}

	var dice [2]int
	for _, a := range g.Actions {
		color := "WB"[a.Player]
		switch a.Type {
		case ActionRoll:
			dice = a.Dice
		case ActionMove:
			var sb strings.Builder
			for i := 0; i < a.Move.Len(); i++ {
				sb.WriteByte(sgfLetter(int(a.Move.From[i]), a.Player))
				sb.WriteByte(sgfLetter(int(a.Move.To[i]), a.Player))
			}
			fmt.Fprintf(w, ";%c[%d%d%s]\n", color, dice[0], dice[1], sb.String())
		case ActionDouble:
			fmt.Fprintf(w, ";%c[double]\n", color)
		case ActionTake:
			fmt.Fprintf(w, ";%c[take]\n", color)
		case ActionPass:
			fmt.Fprintf(w, ";%c[drop]\n", color)
		}
	}
	fmt.Fprintf(w, ")\n")
}
