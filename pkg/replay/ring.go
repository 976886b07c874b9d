// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"sort"

	"github.com/agentmux/agentmux/pkg/message"
)

// ring is a fixed-capacity circular buffer of sequenced messages. Pushing
// onto a full ring overwrites the oldest entry. Entries are stored in
// insertion order, which for sequenced messages is also ascending seq order.
type ring struct {
	buf  []message.Sequenced
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]message.Sequenced, capacity)}
}

func (r *ring) push(m message.Sequenced) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = m
		r.size++
		return
	}
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) at(i int) message.Sequenced {
	return r.buf[(r.head+i)%len(r.buf)]
}

// after returns entries with seq > afterSeq in insertion order. Entries are
// seq-sorted, so the first qualifying index is found by binary search.
func (r *ring) after(afterSeq uint64) []message.Sequenced {
	first := sort.Search(r.size, func(i int) bool {
		return r.at(i).Seq > afterSeq
	})
	if first == r.size {
		return nil
	}
	out := make([]message.Sequenced, 0, r.size-first)
	for i := first; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// tail returns the newest n entries in insertion order.
func (r *ring) tail(n int) []message.Sequenced {
	if n > r.size {
		n = r.size
	}
	out := make([]message.Sequenced, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}
