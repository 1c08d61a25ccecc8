// bgengine - backgammon position shell: move ranking, evaluation, rollouts,
// games between agents and game review.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

func main() {
	opts := engine.DefaultEngineOptions()
	flag.StringVar(&opts.DataDir, "data", opts.DataDir, "directory holding the bearoff databases")
	flag.Uint64Var(&opts.Seed, "seed", opts.Seed, "dice seed")
	base := flag.String("base", ".", "directory holding agents/<name>")
	variant := flag.String("variant", opts.Variant.String(), "game variant")
	level := flag.String("loglevel", "warn", "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: bgengine [options] [command [args]]\n\n"+
			"Without a command, commands are read from standard input.\n\n%s\nOptions:\n", shellHelp)
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(lvl)

	if opts.Variant, err = engine.ParseVariant(*variant); err != nil {
		log.Fatal().Err(err).Msg("bad variant")
	}
	eng, err := engine.NewEngine(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("creating engine")
	}

	sh := newShell(eng, *base, os.Stdout)
	if flag.NArg() > 0 {
		if err := sh.exec(strings.Join(flag.Args(), " ")); err != nil && err != errQuit {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := sh.run(os.Stdin, true); err != nil {
		log.Fatal().Err(err).Msg("reading commands")
	}
}
