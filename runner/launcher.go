package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/agentwire-dev/agentwire/agent"
	"github.com/agentwire-dev/agentwire/connection"
	"github.com/agentwire-dev/agentwire/executor"
	"github.com/agentwire-dev/agentwire/pkg/config"
)

// Launcher builds a runner from on-disk agent project directories. Every
// directory must hold an agentwire.yaml project file; the file is loaded
// and validated before any task starts, whatever the mode.
type Launcher struct {
	dirs       []string
	mode       executor.Mode
	failPolicy string
}

// NewLauncher validates the mode up front and remembers the project
// directories.
func NewLauncher(dirs []string, mode, failPolicy string) (*Launcher, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("launcher: no agent directories")
	}
	m, err := executor.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	if _, err := executor.ParseFailPolicy(failPolicy); err != nil {
		return nil, err
	}
	return &Launcher{dirs: dirs, mode: m, failPolicy: failPolicy}, nil
}

// Runner loads every agent project and builds the runner for them. In
// process mode each directory becomes a child process of this binary; in
// the other modes the agents are built in-process from their configured
// behavior and transport.
func (l *Launcher) Runner() (*Runner, error) {
	tasks := make([]executor.Task, 0, len(l.dirs))
	for _, dir := range l.dirs {
		cfg, err := config.LoadAgent(dir)
		if err != nil {
			return nil, fmt.Errorf("launcher: %s: %w", dir, err)
		}

		if l.mode == executor.ModeProcess {
			tasks = append(tasks, &dirTask{name: cfg.Name, dir: dir})
			continue
		}

		task, err := buildLoop(cfg)
		if err != nil {
			return nil, fmt.Errorf("launcher: %s: %w", dir, err)
		}
		tasks = append(tasks, task)
	}
	return New(tasks, string(l.mode), l.failPolicy)
}

// buildLoop assembles one in-process agent from its project config.
func buildLoop(cfg *config.AgentConfig) (*agent.Loop, error) {
	a, err := newBehavior(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := connection.New(cfg.Transport, cfg.Address, connection.Config(cfg.TransportConfig))
	if err != nil {
		return nil, err
	}
	return agent.NewLoop(a, conn)
}

// dirTask runs one agent project directory as a child process of the
// current binary.
type dirTask struct {
	name string
	dir  string
}

func (t *dirTask) ID() string { return t.name }

// Start is never called in process mode; the executor drives Command.
func (t *dirTask) Start(ctx context.Context) error {
	return fmt.Errorf("task %s runs out of process", t.name)
}

func (t *dirTask) Stop() error { return nil }

func (t *dirTask) Command(ctx context.Context) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, exe, "launch", "--mode", string(executor.ModeThread), t.dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}
