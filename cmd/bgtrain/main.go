// Command bgtrain trains backgammon agents by self-play and benchmarks them
// against a fixed opponent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/trainer"
)

// agentList collects repeated or comma separated -A values.
type agentList []string

func (l *agentList) String() string { return strings.Join(*l, ",") }

func (l *agentList) Set(s string) error {
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*l = append(*l, name)
		}
	}
	return nil
}

func main() {
	cfg := trainer.DefaultConfig()
	engOpts := engine.DefaultEngineOptions()

	var agents agentList
	flag.Var(&agents, "A", "agent(s) to train, repeatable or comma separated")
	flag.StringVar(&cfg.Bench, "B", cfg.Bench, "benchmark agent")
	flag.IntVar(&cfg.TrainGames, "T", cfg.TrainGames, "number of games for training")
	flag.IntVar(&cfg.BenchGames, "G", cfg.BenchGames, "number of games for benchmark")
	flag.IntVar(&cfg.Period, "P", cfg.Period, "benchmark every n games")
	flag.StringVar(&cfg.BasePath, "base", cfg.BasePath, "directory holding agents/<name>")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "dice seed")
	flag.StringVar(&engOpts.DataDir, "data", engOpts.DataDir, "directory holding the bearoff databases")
	variant := flag.String("variant", engOpts.Variant.String(), "game variant")
	level := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	list := flag.Bool("list", false, "list the agent names and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: bgtrain -A <agent> [options]\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(lvl)

	if *list {
		fmt.Println(strings.Join(agent.Names(), "\n"))
		return
	}
	if len(agents) == 0 {
		fmt.Fprintln(os.Stderr, "No agents to train")
		flag.Usage()
		os.Exit(2)
	}
	cfg.Agents = agents

	if engOpts.Variant, err = engine.ParseVariant(*variant); err != nil {
		log.Fatal().Err(err).Msg("bad variant")
	}
	engOpts.Seed = cfg.Seed

	eng, err := engine.NewEngine(engOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("creating engine")
	}
	t, err := trainer.New(eng, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating trainer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := t.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("training")
	}
}
