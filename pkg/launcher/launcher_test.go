// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/errors"
)

func TestResolveBinaryAbsolutePath(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	resolved, err := l.ResolveBinary("/usr/local/bin/claude")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/claude", resolved)
}

func TestResolveBinaryBareNameUsesPATH(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	l.lookPath = func(name string) (string, error) {
		assert.Equal(t, "claude", name)
		return "/opt/tools/claude", nil
	}

	resolved, err := l.ResolveBinary("claude")
	require.NoError(t, err)
	assert.Equal(t, "/opt/tools/claude", resolved)
}

func TestResolveBinaryLookupFailure(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	l.lookPath = func(string) (string, error) {
		return "", fmt.Errorf("not found")
	}

	_, err := l.ResolveBinary("claude")
	require.Error(t, err)
	assert.True(t, errors.IsSpawn(err))
}

func TestResolveBinaryRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	for _, binary := range []string{
		"",
		"relative/path",
		"../escape",
		"name with space",
		"semi;colon",
		"/abs/with space",
		"$(subshell)",
	} {
		_, err := l.ResolveBinary(binary)
		require.Error(t, err, "binary %q should be rejected", binary)
		assert.True(t, errors.IsSpawn(err), "binary %q should yield a spawn error", binary)
	}
}

func TestFilterEnvExactAndPrefix(t *testing.T) {
	t.Parallel()

	l := New([]string{"SECRET_TOKEN", "AWS_*"}, time.Second, nil)
	env := []string{
		"HOME=/home/u",
		"SECRET_TOKEN=abc",
		"AWS_ACCESS_KEY_ID=xyz",
		"AWS_SECRET_ACCESS_KEY=xyz",
		"AWSISH=kept",
		"PATH=/usr/bin",
	}

	got := l.FilterEnv(env)
	assert.Equal(t, []string{
		"HOME=/home/u",
		"AWSISH=kept",
		"PATH=/usr/bin",
	}, got)
}

func TestFilterEnvNoDenyListPassesThrough(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	env := []string{"A=1", "B=2"}
	assert.Equal(t, env, l.FilterEnv(env))
}

func TestSpawnRunsProcessToCompletion(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "exit 0"},
	})
	require.NoError(t, err)
	require.NotZero(t, p.PID())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.NoError(t, p.WaitErr())
	assert.False(t, p.Alive())
}

func TestSpawnHookInjectsEnvironment(t *testing.T) {
	t.Parallel()

	hook := func(_ context.Context, spec *Spec) error {
		spec.Env = append(spec.Env, "GUARD=on")
		return nil
	}
	l := New(nil, time.Second, hook)

	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", `test "$GUARD" = on`},
	})
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.NoError(t, p.WaitErr(), "hook env should be visible to the child")
}

func TestSpawnHookErrorAbortsLaunch(t *testing.T) {
	t.Parallel()

	hook := func(context.Context, *Spec) error {
		return fmt.Errorf("policy says no")
	}
	l := New(nil, time.Second, hook)

	_, err := l.Spawn(context.Background(), Spec{Binary: "/bin/sh", Args: []string{"-c", "exit 0"}})
	require.Error(t, err)
	assert.True(t, errors.IsSpawn(err))
}

func TestSpawnDeniedEnvNeverReachesChild(t *testing.T) {
	t.Parallel()

	l := New([]string{"LEAKY_*"}, time.Second, nil)
	l.environ = func() []string {
		return []string{"PATH=" + os.Getenv("PATH"), "LEAKY_SECRET=oops"}
	}

	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", `test -z "$LEAKY_SECRET"`},
	})
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.NoError(t, p.WaitErr(), "deny-listed variable leaked into the child")
}

func TestSpawnProcessCap(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil, WithMaxProcesses(1))
	first, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)

	_, err = l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "exit 0"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsSpawn(err))

	// The slot frees as soon as the live process is reaped.
	require.NoError(t, first.Stop())
	second, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "exit 0"},
	})
	require.NoError(t, err)
	<-second.Done()
}

func TestSpawnFailureDoesNotLeakCapSlot(t *testing.T) {
	t.Parallel()

	hook := func(context.Context, *Spec) error {
		return fmt.Errorf("policy says no")
	}
	l := New(nil, time.Second, hook, WithMaxProcesses(1))

	for i := 0; i < 3; i++ {
		_, err := l.Spawn(context.Background(), Spec{Binary: "/bin/sh", Args: []string{"-c", "exit 0"}})
		require.Error(t, err)
	}

	l.hook = nil
	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "exit 0"},
	})
	require.NoError(t, err, "rejected spawns must not consume cap slots")
	<-p.Done()
}

func TestStopTerminatesGracefully(t *testing.T) {
	t.Parallel()

	l := New(nil, 2*time.Second, nil)
	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 2*time.Second, "SIGTERM should end the sleep before the kill grace elapses")
	assert.False(t, p.Alive())
}

func TestStopKillsStubbornProcess(t *testing.T) {
	t.Parallel()

	l := New(nil, 200*time.Millisecond, nil)
	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", `trap "" TERM; sleep 30`},
	})
	require.NoError(t, err)

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.Alive())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	l := New(nil, time.Second, nil)
	p, err := l.Spawn(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}

func TestPIDAlive(t *testing.T) {
	t.Parallel()

	assert.True(t, PIDAlive(os.Getpid()))
	assert.False(t, PIDAlive(0))
	assert.False(t, PIDAlive(-5))
	// PIDs wrap well below this on every supported platform.
	assert.False(t, PIDAlive(99999999))
}
