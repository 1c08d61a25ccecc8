// Command bgserver serves position evaluation, move ranking, rollouts,
// game review and training jobs over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/api"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

const version = "0.2.0"

func main() {
	cfg := api.DefaultConfig()
	opts := engine.DefaultEngineOptions()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "host to bind to (0.0.0.0 for all interfaces)")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	flag.IntVar(&cfg.QuickWorkers, "quick", cfg.QuickWorkers, "concurrent evaluations and move lists")
	flag.IntVar(&cfg.HeavyWorkers, "heavy", cfg.HeavyWorkers, "concurrent rollouts and training jobs")
	flag.StringVar(&cfg.BasePath, "base", cfg.BasePath, "directory holding agents/<name>")
	flag.StringVar(&cfg.DefaultAgent, "agent", cfg.DefaultAgent, "agent used when a request names none")
	flag.StringVar(&opts.DataDir, "data", opts.DataDir, "directory holding the bearoff databases")
	flag.Uint64Var(&opts.Seed, "seed", opts.Seed, "dice seed")
	variant := flag.String("variant", opts.Variant.String(), "game variant")
	level := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bgserver v%s\n", version)
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(lvl)

	if opts.Variant, err = engine.ParseVariant(*variant); err != nil {
		log.Fatal().Err(err).Msg("bad variant")
	}
	log.Info().Str("data", opts.DataDir).Str("variant", opts.Variant.String()).Msg("loading engine")
	eng, err := engine.NewEngine(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("creating engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := api.NewServer(eng, cfg, version).ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
