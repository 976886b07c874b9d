// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package launcher spawns and supervises backend child processes under the
// broker's spawn contract: strict binary validation, PATH resolution for
// bare names, deny-list env filtering and an optional before-spawn hook.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
)

// Binary names must be an absolute path of safe characters or a bare
// basename resolved through PATH. Anything else is refused outright.
var (
	absolutePathRe = regexp.MustCompile(`^/[A-Za-z0-9_./-]+$`)
	baseNameRe     = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Spec describes one process to spawn. Env entries are KEY=VALUE pairs
// added on top of the deny-filtered inherited environment.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Hook runs after validation and env assembly, immediately before the
// process starts. It may mutate the spec to inject guardrails; an error
// aborts the spawn.
type Hook func(ctx context.Context, spec *Spec) error

// Launcher spawns backend processes.
type Launcher struct {
	denyList  []string
	killGrace time.Duration
	hook      Hook
	maxProcs  int

	mu   sync.Mutex
	live int

	// Seams for tests.
	lookPath func(string) (string, error)
	environ  func() []string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithMaxProcesses caps how many spawned processes may be alive at once.
// Zero or negative means no cap.
func WithMaxProcesses(n int) Option {
	return func(l *Launcher) {
		l.maxProcs = n
	}
}

// New creates a launcher. killGrace is how long Stop waits between SIGTERM
// and SIGKILL.
func New(denyList []string, killGrace time.Duration, hook Hook, opts ...Option) *Launcher {
	l := &Launcher{
		denyList:  denyList,
		killGrace: killGrace,
		hook:      hook,
		lookPath:  exec.LookPath,
		environ:   os.Environ,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ResolveBinary validates the binary name against the spawn contract and
// resolves bare names through PATH.
func (l *Launcher) ResolveBinary(binary string) (string, error) {
	switch {
	case binary == "":
		return "", errors.NewSpawnError("binary name is empty", nil)
	case absolutePathRe.MatchString(binary):
		return binary, nil
	case baseNameRe.MatchString(binary):
		resolved, err := l.lookPath(binary)
		if err != nil {
			return "", errors.NewSpawnError("binary not found in PATH: "+binary, err)
		}
		return resolved, nil
	default:
		return "", errors.NewSpawnError("binary name fails validation: "+binary, nil)
	}
}

// FilterEnv strips deny-listed variables from env. Deny entries match a
// variable name exactly, or as a prefix when they end with '*'.
func (l *Launcher) FilterEnv(env []string) []string {
	if len(l.denyList) == 0 {
		return env
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !l.denied(name) {
			out = append(out, kv)
		}
	}
	return out
}

func (l *Launcher) denied(name string) bool {
	for _, entry := range l.denyList {
		if prefix, ok := strings.CutSuffix(entry, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == entry {
			return true
		}
	}
	return false
}

// acquireSlot claims a live-process slot, refusing when the cap is reached.
func (l *Launcher) acquireSlot() error {
	if l.maxProcs <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live >= l.maxProcs {
		return errors.NewSpawnError(fmt.Sprintf("process cap reached: %d live", l.live), nil)
	}
	l.live++
	return nil
}

func (l *Launcher) releaseSlot() {
	if l.maxProcs <= 0 {
		return
	}
	l.mu.Lock()
	l.live--
	l.mu.Unlock()
}

// Spawn validates, assembles the environment, runs the hook and starts the
// process with stdio pipes attached.
func (l *Launcher) Spawn(ctx context.Context, spec Spec) (*Process, error) {
	if err := l.acquireSlot(); err != nil {
		return nil, err
	}
	started := false
	defer func() {
		if !started {
			l.releaseSlot()
		}
	}()

	resolved, err := l.ResolveBinary(spec.Binary)
	if err != nil {
		return nil, err
	}
	spec.Binary = resolved
	spec.Env = append(l.FilterEnv(l.environ()), spec.Env...)

	if l.hook != nil {
		if err := l.hook(ctx, &spec); err != nil {
			return nil, errors.NewSpawnError("before-spawn hook rejected the launch", err)
		}
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewSpawnError("could not open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewSpawnError("could not open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewSpawnError("could not open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError("process failed to start: "+spec.Binary, err)
	}

	p := &Process{
		cmd:       cmd,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		startedAt: time.Now(),
		killGrace: l.killGrace,
		done:      make(chan struct{}),
		release:   l.releaseSlot,
	}
	started = true
	go p.reap()

	logger.Infow("spawned backend process",
		"binary", spec.Binary, "pid", p.PID(), "dir", spec.Dir)
	return p, nil
}

// Process is one spawned backend child.
type Process struct {
	cmd       *exec.Cmd
	Stdin     io.WriteCloser
	Stdout    io.ReadCloser
	Stderr    io.ReadCloser
	startedAt time.Time
	killGrace time.Duration
	release   func()

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

// reap frees the launcher slot before closing done, so a caller that has
// observed Done can immediately spawn a replacement.
func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	if p.release != nil {
		p.release()
	}
	close(p.done)
}

// PID returns the OS process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when the process started.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// WaitErr returns the exit error. Only meaningful after Done is closed.
func (p *Process) WaitErr() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop terminates the process gracefully: SIGTERM, wait out the kill grace
// period, then SIGKILL. Idempotent; always waits for the reaper.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		if !p.Alive() {
			return
		}
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Debugw("terminate failed, killing", "pid", p.PID(), "error", err)
			_ = p.cmd.Process.Kill()
			return
		}
		select {
		case <-p.done:
		case <-time.After(p.killGrace):
			logger.Warnw("process ignored SIGTERM, killing", "pid", p.PID())
			_ = p.cmd.Process.Kill()
		}
	})
	<-p.done
	return nil
}

// PIDAlive reports whether pid belongs to a currently running process.
// Used on boot to decide whether a persisted backend survived a broker
// restart.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
