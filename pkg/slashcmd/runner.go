// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package slashcmd

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/logger"
)

// ArgsPlaceholder marks where user-supplied arguments land in a command
// template. A template element equal to the placeholder is dropped when the
// user passed no arguments.
const ArgsPlaceholder = "{args}"

// Command is the argv template the runner executes for one slash command.
type Command struct {
	Binary string
	Args   []string
}

// ProcessRunner executes slash commands the backend does not know by
// spawning the agent binary and scraping its merged output until it goes
// quiet. The scrape stops at the silence threshold, the total timeout, or
// process exit, whichever comes first.
type ProcessRunner struct {
	launcher *launcher.Launcher
	commands map[string]Command
	enabled  bool
	timeout  time.Duration
	silence  time.Duration
}

// NewProcessRunner builds a runner from the slash-command config. commands
// maps command names (no leading slash) to argv templates.
func NewProcessRunner(l *launcher.Launcher, cfg config.SlashCommand, commands map[string]Command) *ProcessRunner {
	timeout := time.Duration(cfg.PTYTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	silence := time.Duration(cfg.PTYSilenceThresholdMs) * time.Millisecond
	if silence <= 0 {
		silence = 1500 * time.Millisecond
	}
	if commands == nil {
		commands = map[string]Command{}
	}
	return &ProcessRunner{
		launcher: l,
		commands: commands,
		enabled:  cfg.PTYEnabled,
		timeout:  timeout,
		silence:  silence,
	}
}

// CanRun reports whether the runner is enabled and knows name.
func (r *ProcessRunner) CanRun(name string) bool {
	if !r.enabled || r.launcher == nil {
		return false
	}
	_, ok := r.commands[name]
	return ok
}

// Run spawns the command in cwd and returns its scraped output.
func (r *ProcessRunner) Run(ctx context.Context, name, args, cwd string) (string, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return "", errors.NewValidationError("no runnable command: "+name, nil)
	}

	proc, err := r.launcher.Spawn(ctx, launcher.Spec{
		Binary: cmd.Binary,
		Args:   expandArgs(cmd.Args, args),
		Dir:    cwd,
	})
	if err != nil {
		return "", err
	}
	// The command gets no input; closing stdin lets line-buffered tools
	// flush and exit instead of waiting on EOF.
	_ = proc.Stdin.Close()

	out, err := r.scrape(ctx, proc)
	if stopErr := proc.Stop(); stopErr != nil {
		logger.Debugw("slash command process stop", "command", name, "error", stopErr)
	}
	return out, err
}

// scrape collects merged stdout/stderr lines until the output goes quiet,
// the total timeout fires, or both pipes close.
func (r *ProcessRunner) scrape(ctx context.Context, proc *launcher.Process) (string, error) {
	lines := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(proc.Stdout, lines, &wg)
	go scanLines(proc.Stderr, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	total := time.NewTimer(r.timeout)
	defer total.Stop()
	quiet := time.NewTimer(r.silence)
	defer quiet.Stop()

	var out []string
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return strings.Join(out, "\n"), nil
			}
			out = append(out, line)
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(r.silence)
		case <-quiet.C:
			return strings.Join(out, "\n"), nil
		case <-total.C:
			logger.Warnw("slash command hit total timeout", "timeout", r.timeout)
			return strings.Join(out, "\n"), nil
		case <-ctx.Done():
			return strings.Join(out, "\n"), ctx.Err()
		}
	}
}

func scanLines(rc io.ReadCloser, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

func expandArgs(template []string, args string) []string {
	out := make([]string, 0, len(template))
	for _, t := range template {
		if !strings.Contains(t, ArgsPlaceholder) {
			out = append(out, t)
			continue
		}
		if t == ArgsPlaceholder && args == "" {
			continue
		}
		out = append(out, strings.ReplaceAll(t, ArgsPlaceholder, args))
	}
	return out
}
