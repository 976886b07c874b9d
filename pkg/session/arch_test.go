// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The session record's fields are package-private, so the compiler already
// rejects direct writes from other packages. This scan enforces what the
// compiler cannot: records are built by New (a zero Session has nil maps and
// no limiter state) and hardcoded lifecycle/status values come from the
// declared constants, not string literals. Converting a wire-supplied
// variable is still allowed.
func TestSessionRecordConventions(t *testing.T) {
	t.Parallel()

	forbidden := []struct {
		pattern string
		reason  string
	}{
		{`session.Session{`, "construct sessions through session.New"},
		{`session.Lifecycle("`, "use the Lifecycle constants"},
		{`session.Status("`, "use the Status constants"},
	}

	root := moduleRoot(t)
	selfDir := filepath.Join(root, "pkg", "session")

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path == selfDir || name == "_examples" || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(data)
		for _, f := range forbidden {
			if idx := strings.Index(src, f.pattern); idx >= 0 {
				line := 1 + strings.Count(src[:idx], "\n")
				t.Errorf("%s:%d uses %s: %s", path, line, f.pattern, f.reason)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// moduleRoot walks up from the test's working directory to the go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "no go.mod above the test directory")
		dir = parent
	}
}
