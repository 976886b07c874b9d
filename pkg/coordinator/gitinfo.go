// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
)

// refreshGit is the router's git hook. The probe walks the worktree for the
// dirty check, so it runs on its own goroutine and re-enters the session's
// operation lock before publishing; concurrent refreshes for the same
// session coalesce into one.
func (c *Coordinator) refreshGit(sess *session.Session) {
	cwd := sess.State().CWD
	if cwd == "" {
		return
	}
	c.gitMu.Lock()
	if _, busy := c.gitPending[sess.ID()]; busy {
		c.gitMu.Unlock()
		return
	}
	c.gitPending[sess.ID()] = struct{}{}
	c.gitMu.Unlock()

	go func() {
		defer func() {
			c.gitMu.Lock()
			delete(c.gitPending, sess.ID())
			c.gitMu.Unlock()
		}()

		gi := readGitInfo(cwd)

		sess.Serialize(func() {
			if !gitChanged(sess.State().Git, gi) {
				return
			}
			sess.SetGit(gi)
			c.bcast.Broadcast(sess.ID(), consumersOf(sess), message.Consumer{
				Type:      message.ConsumerSessionUpdate,
				SessionID: sess.ID(),
				State:     sess.State(),
			})
		})
	}()
}

func gitChanged(prev, next *session.GitInfo) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	return *prev != *next
}

// readGitInfo probes the working tree. A directory outside any git
// repository yields nil; inside one, fields the probe cannot determine
// (for example a branch in a repo with no commits yet) stay zero.
func readGitInfo(dir string) *session.GitInfo {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	gi := &session.GitInfo{}
	if ref, err := repo.Head(); err == nil {
		if ref.Name().IsBranch() {
			gi.Branch = ref.Name().Short()
		}
		gi.Commit = shortHash(ref.Hash())
	}
	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			gi.Dirty = !status.IsClean()
		}
	}
	if rem, err := repo.Remote("origin"); err == nil {
		if urls := rem.Config().URLs; len(urls) > 0 {
			gi.RemoteURL = urls[0]
		}
	}
	return gi
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
