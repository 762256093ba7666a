package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentwire-dev/agentwire/agent"
	"github.com/agentwire-dev/agentwire/pkg/config"
)

// BehaviorFactory builds an agent from its project configuration.
type BehaviorFactory func(cfg *config.AgentConfig) (agent.Agent, error)

var (
	behaviorMu sync.RWMutex
	behaviors  = make(map[string]BehaviorFactory)
)

func init() {
	RegisterBehavior("echo", func(cfg *config.AgentConfig) (agent.Agent, error) {
		return agent.NewEcho(cfg.Name, cfg.Address), nil
	})
}

// RegisterBehavior adds an agent behavior under the given name, making it
// referencable from agent project files. It panics on a nil factory or a
// duplicate name, matching the usual init-time contract.
func RegisterBehavior(name string, factory BehaviorFactory) {
	behaviorMu.Lock()
	defer behaviorMu.Unlock()

	if factory == nil {
		panic("runner: RegisterBehavior factory is nil")
	}
	if _, dup := behaviors[name]; dup {
		panic("runner: RegisterBehavior called twice for behavior " + name)
	}
	behaviors[name] = factory
}

// newBehavior builds the agent a project file names.
func newBehavior(cfg *config.AgentConfig) (agent.Agent, error) {
	behaviorMu.RLock()
	factory, ok := behaviors[cfg.Behavior]
	behaviorMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown behavior: %s (available: %v)", cfg.Behavior, Behaviors())
	}
	return factory(cfg)
}

// Behaviors returns the sorted names of all registered behaviors.
func Behaviors() []string {
	behaviorMu.RLock()
	defer behaviorMu.RUnlock()

	names := make([]string, 0, len(behaviors))
	for name := range behaviors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
