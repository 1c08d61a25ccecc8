package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/dispatch"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
)

const defaultAgent = "heuristic"

var errQuit = errors.New("quit")

// shell holds the position being studied. The side on roll is always
// Self; turn says whether that is O (0) or X (1).
type shell struct {
	eng  *engine.Engine
	base string
	out  io.Writer
	term *termenv.Output

	board  engine.Board
	turn   int
	agents map[string]agent.Agent
	last   *dispatch.Dispatcher // of the last game command
	stream uint64
}

func newShell(eng *engine.Engine, base string, out io.Writer) *shell {
	return &shell{
		eng:    eng,
		base:   base,
		out:    out,
		term:   termenv.NewOutput(out),
		board:  engine.InitBoard(eng.Variant()),
		agents: make(map[string]agent.Agent),
	}
}

func (s *shell) nextStream() uint64 {
	s.stream++
	return s.stream
}

// agent returns the cached agent called name.
func (s *shell) agent(name string) (agent.Agent, error) {
	key := strings.ToLower(name)
	if a, ok := s.agents[key]; ok {
		return a, nil
	}
	a, err := agent.New(key, agent.Options{Engine: s.eng, BasePath: s.base, Stream: s.nextStream()})
	if err != nil {
		return nil, err
	}
	s.agents[key] = a
	return a, nil
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func parseDie(s string) (int, error) {
	d, err := strconv.Atoi(s)
	if err != nil || d < 1 || d > 6 {
		return 0, errors.Errorf("die %q must be 1-6", s)
	}
	return d, nil
}

func parseDice(args []string) (int, int, error) {
	if len(args) < 2 {
		return 0, 0, errors.New("two dice required")
	}
	d0, err := parseDie(args[0])
	if err != nil {
		return 0, 0, err
	}
	d1, err := parseDie(args[1])
	if err != nil {
		return 0, 0, err
	}
	return d0, d1, nil
}

func parseCount(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("count %q must be positive", s)
	}
	return n, nil
}

// run reads commands from r until EOF or quit.
func (s *shell) run(r io.Reader, prompt bool) error {
	sc := bufio.NewScanner(r)
	for {
		if prompt {
			fmt.Fprint(s.out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		err := s.exec(sc.Text())
		if err == errQuit {
			return nil
		}
		if err != nil {
			fmt.Fprintln(s.out, s.term.String("error: "+err.Error()).Foreground(s.term.Color("1")))
		}
	}
}

// exec runs one command line.
func (s *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "new":
		s.board, s.turn = engine.InitBoard(s.eng.Variant()), 0
		return s.show()
	case "show":
		return s.show()
	case "setpos":
		return s.setPosition(args)
	case "moves":
		return s.moves(args)
	case "eval":
		return s.eval(args)
	case "play":
		return s.play(args)
	case "game":
		return s.game(args)
	case "export":
		return s.export(args)
	case "rollout":
		return s.rollout(args)
	case "analyze":
		return s.analyze(args)
	case "agents":
		fmt.Fprintln(s.out, strings.Join(agent.Names(), " "))
		return nil
	case "help", "?":
		fmt.Fprint(s.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	}
	return errors.Errorf("unknown command %q, try help", cmd)
}

const shellHelp = `Commands:
  new                       start position
  show                      draw the board
  setpos <id>               set the position from a gnubg position ID
  moves <d1> <d2> [agent]   rank the moves of a roll
  eval [agent]              evaluate the position for the side on roll
  play <d1> <d2> [agent]    play the best move and pass the dice
  game <agent1> <agent2> [n] play n games (one game is shown move by move)
  export <file>             write the games of the last game command as MAT
  rollout [agent] [trials] [truncate]
  analyze <file> [agent]    review the moves of a MAT or SGF file
  agents                    list the agent names
  quit
`

var signs = [2]string{"O", "X"}

func (s *shell) show() error {
	b := s.board
	pips := b.PipCount()
	fmt.Fprint(s.out, b.Draw(s.eng.Variant().Chequers()))
	header := fmt.Sprintf("%s on roll, pips %d against %d, %s", signs[s.turn], pips[engine.Self], pips[engine.Opponent], s.eng.Classify(b))
	fmt.Fprintln(s.out, s.term.String(header).Bold())
	return nil
}

func (s *shell) setPosition(args []string) error {
	if len(args) == 0 {
		return errors.New("position ID required")
	}
	id := args[0]
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	b, err := engine.BoardFromID(id)
	if err != nil {
		return err
	}
	if err := b.Check(s.eng.Variant()); err != nil {
		return err
	}
	s.board, s.turn = b, 0
	return s.show()
}

func (s *shell) moves(args []string) error {
	d0, d1, err := parseDice(args)
	if err != nil {
		return err
	}
	a, err := s.agent(argOr(args, 2, defaultAgent))
	if err != nil {
		return err
	}
	ml, err := dispatch.RankMoves(s.eng, a, s.board, d0, d1)
	if err != nil {
		return err
	}
	if len(ml.Moves) == 0 {
		fmt.Fprintln(s.out, "No legal moves.")
		return nil
	}
	fmt.Fprintf(s.out, "Moves for %d%d by %s:\n", d0, d1, a.Name())
	best := ml.Moves[0].Score
	for i, c := range ml.Moves {
		if i == 10 {
			fmt.Fprintf(s.out, "    ... %d more\n", len(ml.Moves)-i)
			break
		}
		fmt.Fprintf(s.out, "%3d. %-24s %+.3f (%+.3f)  %s\n", i+1, s.board.FormatMove(c.Move), c.Score, c.Score-best, c.Class)
	}
	return nil
}

func (s *shell) printReward(label string, r engine.Reward) {
	fmt.Fprintf(s.out, "%s equity %+.3f\n", label, r[engine.Equity])
	fmt.Fprintf(s.out, "  win  %5.1f%% (G %5.1f%%, BG %5.1f%%)\n", r[engine.Win]*100, r[engine.WinGammon]*100, r[engine.WinBackgammon]*100)
	fmt.Fprintf(s.out, "  lose %5.1f%% (G %5.1f%%, BG %5.1f%%)\n", (1-r[engine.Win])*100, r[engine.LoseGammon]*100, r[engine.LoseBackgammon]*100)
}

func (s *shell) eval(args []string) error {
	a, err := s.agent(argOr(args, 0, defaultAgent))
	if err != nil {
		return err
	}
	r, class, err := dispatch.Evaluate(s.eng, a, s.board)
	if err != nil {
		return err
	}
	s.printReward(fmt.Sprintf("%s (%s):", a.Name(), class), r)
	return nil
}

func (s *shell) play(args []string) error {
	d0, d1, err := parseDice(args)
	if err != nil {
		return err
	}
	a, err := s.agent(argOr(args, 2, defaultAgent))
	if err != nil {
		return err
	}
	ml, err := dispatch.RankMoves(s.eng, a, s.board, d0, d1)
	if err != nil {
		return err
	}
	if len(ml.Moves) == 0 {
		fmt.Fprintf(s.out, "%s cannot move.\n", signs[s.turn])
	} else {
		fmt.Fprintf(s.out, "%s moves %d%d: %s\n", signs[s.turn], d0, d1, s.board.FormatMove(ml.Moves[0].Move))
		s.board = engine.BoardFromKey(ml.Moves[0].Key)
		if n := s.board.GameStatus(s.eng.Variant()); n > 0 {
			fmt.Fprintf(s.out, "%s wins %d point(s).\n", signs[s.turn], n)
		}
	}
	s.board.SwapSides()
	s.turn = 1 - s.turn
	return s.show()
}

func (s *shell) game(args []string) error {
	if len(args) < 2 {
		return errors.New("two agents required")
	}
	n, err := parseCount(argOr(args, 2, ""), 1)
	if err != nil {
		return err
	}
	var agents [2]agent.Agent
	for i := range agents {
		// Fresh agents so that both seats may play the same name.
		if agents[i], err = agent.New(args[i], agent.Options{Engine: s.eng, BasePath: s.base, Stream: s.nextStream()}); err != nil {
			return err
		}
	}
	opts := dispatch.Options{Out: s.out, ShowLog: n == 1, Stream: s.nextStream(), KeepGames: true}
	d, err := dispatch.New(s.eng, agents[0], agents[1], opts)
	if err != nil {
		return err
	}
	if err := d.PlayGames(n, false); err != nil {
		return err
	}
	s.last = d
	return d.PrintStatistics(s.out)
}

func (s *shell) export(args []string) error {
	if len(args) == 0 {
		return errors.New("file name required")
	}
	if s.last == nil {
		return errors.New("no games played")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := s.last.ExportMAT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *shell) rollout(args []string) error {
	name := argOr(args, 0, defaultAgent)
	opts := dispatch.DefaultRolloutOptions()
	var err error
	if opts.Trials, err = parseCount(argOr(args, 1, ""), opts.Trials); err != nil {
		return err
	}
	if len(args) > 2 {
		if opts.Truncate, err = parseCount(args[2], 0); err != nil {
			return err
		}
	}
	newAgent := func() (agent.Agent, error) {
		return agent.New(name, agent.Options{Engine: s.eng, BasePath: s.base, Stream: opts.Stream})
	}
	res, err := dispatch.Rollout(context.Background(), s.eng, newAgent, s.board, opts, nil)
	if err != nil {
		return err
	}
	s.printReward(fmt.Sprintf("Rollout of %d games by %s:", res.Trials, name), res.Reward)
	fmt.Fprintf(s.out, "  sd %.3f, 95%% ci %.3f\n", res.EquityStdDev, res.EquityCI)
	return nil
}

func importMatch(path string) (*match.Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".sgf") {
		return match.ImportSGF(f)
	}
	return match.ImportMAT(f)
}

func (s *shell) analyze(args []string) error {
	if len(args) == 0 {
		return errors.New("file name required")
	}
	m, err := importMatch(args[0])
	if err != nil {
		return err
	}
	a, err := s.agent(argOr(args, 1, defaultAgent))
	if err != nil {
		return err
	}
	names := [2]string{m.Player1, m.Player2}
	for _, g := range m.Games {
		ga, err := dispatch.AnalyzeGame(s.eng, a, g)
		if err != nil {
			return errors.Wrapf(err, "game %d", g.Number)
		}
		fmt.Fprintf(s.out, "Game %d\n", g.Number)
		for i, mv := range ga.Moves {
			if mv.Forced || mv.Skill == dispatch.SkillNone {
				continue
			}
			line := fmt.Sprintf("  %3d %s %d%d: %s%s, best %s (%+.3f)", i+1, names[mv.Player], mv.Dice[0], mv.Dice[1],
				mv.Board.FormatMove(mv.Move), mv.Skill.Abbr(), mv.Board.FormatMove(mv.Best), -mv.Loss)
			fmt.Fprintln(s.out, line)
		}
		for p, pa := range ga.Players {
			fmt.Fprintf(s.out, "  %s: %d moves, %d doubtful, %d bad, %d very bad, error rate %.4f (%s)\n",
				names[p], pa.Moves, pa.Doubtful, pa.Bad, pa.VeryBad, pa.ErrorPerMove, pa.Rating)
		}
	}
	return nil
}
