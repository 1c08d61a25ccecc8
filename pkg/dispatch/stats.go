package dispatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarises the games played since the last reset, seen from
// the agent in seat 0.
type Statistics struct {
	Games  int
	Names  [2]string
	Won    [2]int
	Points [2]int
	PPG    float64 // points per game won by agent 0 over agent 1
	StdDev float64 // standard deviation of the per-game point difference
}

// Statistics returns the running totals.
func (d *Dispatcher) Statistics() Statistics {
	s := Statistics{
		Games:  d.games,
		Names:  [2]string{d.agents[0].Name(), d.agents[1].Name()},
		Won:    d.won,
		Points: d.points,
	}
	if d.games > 0 {
		s.PPG = float64(d.points[0]-d.points[1]) / float64(d.games)
	}
	if len(d.diffs) > 1 {
		s.StdDev = stat.StdDev(d.diffs, nil)
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// PrintStatistics writes the statistics to w, the winning side in green,
// and appends "<played games>;<ppg>" to "<name0> vs <name1>.csv" in the
// directory of agent 0.
func (d *Dispatcher) PrintStatistics(w io.Writer) error {
	s := d.Statistics()
	out := termenv.NewOutput(w)

	fmt.Fprintf(w, "\n\tStatistics after %d game(s)\n", s.Games)
	for i := 0; i < 2; i++ {
		line := fmt.Sprintf("%c:%s: games %d/%d = %5.2f%%, points %d = %5.2f%%",
			signs[i], s.Names[i], s.Won[i], s.Games, percent(s.Won[i], s.Games),
			s.Points[i], percent(s.Points[i], s.Points[0]+s.Points[1]))
		style := out.String(line)
		switch {
		case s.Points[i] > s.Points[1-i]:
			style = style.Foreground(out.Color("2"))
		case s.Points[i] < s.Points[1-i]:
			style = style.Foreground(out.Color("1"))
		}
		fmt.Fprintln(w, style.String())
	}
	fmt.Fprintf(w, "%c:%s: won %+5.3f ppg (sd %.3f)\n", signs[0], s.Names[0], s.PPG, s.StdDev)

	return d.appendCSV(s)
}

func (d *Dispatcher) appendCSV(s Statistics) error {
	a := d.agents[0]
	if err := os.MkdirAll(a.Path(), 0o755); err != nil {
		return errors.Wrap(err, "creating statistics directory")
	}
	path := filepath.Join(a.Path(), s.Names[0]+" vs "+s.Names[1]+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening statistics log")
	}
	if _, err := fmt.Fprintf(f, "%d;%f\n", a.PlayedGames(), s.PPG); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
