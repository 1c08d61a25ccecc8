package agent

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// ErrUnknownAgent is returned by New for names no constructor handles.
var ErrUnknownAgent = errors.New("unknown agent")

// Options are passed to every agent constructor.
type Options struct {
	Engine   *engine.Engine
	BasePath string // directory holding agents/<name>
	Stream   uint64 // engine random stream for the agent's own randomness
}

// Hidden units of the learning agents.
const (
	RawHidden   = 39
	GnubgHidden = 40
)

type constructor func(name string, opts Options) (Agent, error)

var constructors = map[string]constructor{
	"random": func(_ string, o Options) (Agent, error) {
		return NewRandom(o.Engine, o.BasePath, o.Engine.NewRNG(o.Stream)), nil
	},
	"heuristic": func(_ string, o Options) (Agent, error) {
		return NewHeuristic(o.Engine, o.BasePath), nil
	},
	"pubeval": func(_ string, o Options) (Agent, error) {
		return NewPubeval(o.Engine, o.BasePath)
	},
	"gnubg": func(_ string, o Options) (Agent, error) {
		return NewGnubg(o.Engine, o.BasePath)
	},
	"pubevalex": func(name string, o Options) (Agent, error) {
		return newLearner(name, o, PubevalRepresentation{}, 0)
	},
	"gnubgex": func(name string, o Options) (Agent, error) {
		return newLearner(name, o, GnubgRepresentation{}, GnubgHidden)
	},
}

func init() {
	for _, enc := range encodingNames {
		e, _ := ParseEncoding(enc)
		repr := RawRepresentation{Encoding: e}
		constructors[repr.Name()] = func(name string, o Options) (Agent, error) {
			return newLearner(name, o, repr, RawHidden)
		}
	}
}

// newLearner creates a Flex agent with lambda 0.7 and the sanity check
// off, then applies the saved params.json over it.
func newLearner(name string, o Options, repr Representation, hidden int) (Agent, error) {
	a, err := NewFlex(o.Engine, o.BasePath, name, repr, FlexNets{Hidden: hidden, Stream: o.Stream})
	if err != nil {
		return nil, err
	}
	a.SetSanityCheck(false)
	if err := a.SetLambda(0.7); err != nil {
		return nil, err
	}
	if err := a.Load(); err != nil {
		return nil, errors.Wrapf(err, "loading %s params", name)
	}
	return a, nil
}

// New creates the agent called name. Names are case-insensitive.
func New(name string, opts Options) (Agent, error) {
	if opts.Engine == nil {
		return nil, errors.New("agent options without engine")
	}
	key := strings.ToLower(name)
	c, ok := constructors[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAgent, "%q", name)
	}
	a, err := c(key, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "creating agent %s", name)
	}
	return a, nil
}

// Names lists the agent names New accepts.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
