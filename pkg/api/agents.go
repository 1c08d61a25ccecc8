package api

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// agentSource hands out agents to requests. Agents keep per-move state, so
// each shared instance is locked while a request uses it; rollouts get
// private copies.
type agentSource struct {
	eng    *engine.Engine
	base   string
	stream atomic.Uint64

	mu     sync.Mutex
	shared map[string]*sharedAgent
}

type sharedAgent struct {
	sync.Mutex
	agent.Agent
}

// streamBase keeps the dice streams of request agents apart from the
// rollout and trainer streams.
const streamBase = 1 << 40

func newAgentSource(eng *engine.Engine, base string) *agentSource {
	s := &agentSource{eng: eng, base: base, shared: make(map[string]*sharedAgent)}
	s.stream.Store(streamBase)
	return s
}

func (s *agentSource) create(name string) (agent.Agent, error) {
	a, err := agent.New(name, agent.Options{Engine: s.eng, BasePath: s.base, Stream: s.stream.Add(1)})
	if err != nil {
		return nil, err
	}
	a.SetLearnMode(false)
	return a, nil
}

func (s *agentSource) get(name string) (*sharedAgent, error) {
	key := strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sa, ok := s.shared[key]; ok {
		return sa, nil
	}
	a, err := s.create(name)
	if err != nil {
		return nil, err
	}
	sa := &sharedAgent{Agent: a}
	s.shared[key] = sa
	return sa, nil
}

// use runs f with the shared agent called name.
func (s *agentSource) use(name string, f func(agent.Agent) error) error {
	sa, err := s.get(name)
	if err != nil {
		return err
	}
	sa.Lock()
	defer sa.Unlock()
	return f(sa.Agent)
}

// private returns a new agent called name: a copy of the shared one when it
// can be cloned, a fresh instance otherwise.
func (s *agentSource) private(name string) (agent.Agent, error) {
	sa, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if !sa.IsCloneable() {
		return s.create(name)
	}
	sa.Lock()
	defer sa.Unlock()
	a, err := sa.Clone()
	if err != nil {
		return nil, err
	}
	a.SetLearnMode(false)
	return a, nil
}
