// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/replay"
	"github.com/agentmux/agentmux/pkg/session/mocks"
)

type fakeConsumer struct {
	mu       sync.Mutex
	id       string
	role     string
	buffered int
	sent     []string
	sendErr  error
}

func (f *fakeConsumer) ID() string          { return f.id }
func (f *fakeConsumer) Role() string        { return f.role }
func (f *fakeConsumer) BufferedAmount() int { return f.buffered }

func (f *fakeConsumer) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeConsumer) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

const testThreshold = 1 << 20

func TestBackpressureDropsSlowConsumer(t *testing.T) {
	t.Parallel()

	slow := &fakeConsumer{id: "A", role: message.RoleParticipant, buffered: testThreshold + 1}
	fast := &fakeConsumer{id: "B", role: message.RoleParticipant, buffered: 0}

	var callbacks []string
	var removed []string
	b := New(replay.NewHandler(100), testThreshold, nil, nil,
		func(sessionID string, msg message.Consumer) {
			callbacks = append(callbacks, sessionID+"/"+string(msg.Type))
		},
		func(_, consumerID string) { removed = append(removed, consumerID) },
	)

	b.Broadcast("S", []Consumer{slow, fast}, message.NewStatusChange("idle"))

	assert.Empty(t, slow.frames())
	require.Len(t, fast.frames(), 1)
	assert.JSONEq(t, `{"type":"status_change","status":"idle"}`, fast.frames()[0])

	// The callback fires once regardless of per-consumer skips, and the
	// slow consumer stays attached for future attempts.
	assert.Equal(t, []string{"S/status_change"}, callbacks)
	assert.Empty(t, removed)
}

func TestBackpressureBoundaryEqualitySends(t *testing.T) {
	t.Parallel()

	atLimit := &fakeConsumer{id: "A", role: message.RoleParticipant, buffered: testThreshold}
	b := New(replay.NewHandler(100), testThreshold, nil, nil, nil, nil)

	b.Broadcast("S", []Consumer{atLimit}, message.NewStatusChange("idle"))

	assert.Len(t, atLimit.frames(), 1)
}

// TestBackpressuredConsumerNeverWritten pins the skip at the call level: a
// consumer over the threshold sees no Send and no Close, only the accessor
// reads the drop decision needs.
func TestBackpressuredConsumerNeverWritten(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	slow := mocks.NewMockConsumerConn(ctrl)
	slow.EXPECT().BufferedAmount().Return(testThreshold + 1).AnyTimes()
	slow.EXPECT().ID().Return("slow").AnyTimes()
	slow.EXPECT().Role().Return(message.RoleParticipant).AnyTimes()

	b := New(replay.NewHandler(100), testThreshold, nil, nil, nil, nil)
	b.Broadcast("S", []Consumer{slow}, message.NewStatusChange("idle"))
}

func TestProcessOutputSkipsObservers(t *testing.T) {
	t.Parallel()

	participant := &fakeConsumer{id: "P", role: message.RoleParticipant}
	observer := &fakeConsumer{id: "O", role: message.RoleObserver}
	b := New(replay.NewHandler(100), testThreshold, nil, nil, nil, nil)

	b.BroadcastProcessOutput("S", []Consumer{participant, observer}, "stderr", "HELLO")

	require.Len(t, participant.frames(), 1)
	assert.JSONEq(t, `{"type":"process_output","stream":"stderr","data":"HELLO"}`, participant.frames()[0])
	assert.Empty(t, observer.frames())
}

func TestObserverReceivesSemanticMessages(t *testing.T) {
	t.Parallel()

	observer := &fakeConsumer{id: "O", role: message.RoleObserver}
	b := New(replay.NewHandler(100), testThreshold, nil, nil, nil, nil)

	b.Broadcast("S", []Consumer{observer}, message.NewStatusChange("running"))

	assert.Len(t, observer.frames(), 1)
}

func TestSendFailureRemovesOnlyFailedConsumer(t *testing.T) {
	t.Parallel()

	broken := &fakeConsumer{id: "A", role: message.RoleParticipant, sendErr: errors.New("pipe closed")}
	healthy := &fakeConsumer{id: "B", role: message.RoleParticipant}

	var removed []string
	callbackFired := 0
	b := New(replay.NewHandler(100), testThreshold, nil, nil,
		func(string, message.Consumer) { callbackFired++ },
		func(_, consumerID string) { removed = append(removed, consumerID) },
	)

	b.Broadcast("S", []Consumer{broken, healthy}, message.NewStatusChange("idle"))

	assert.Equal(t, []string{"A"}, removed)
	assert.Len(t, healthy.frames(), 1)
	assert.Equal(t, 1, callbackFired)
}

func TestBroadcastOrderEqualsSequenceOrder(t *testing.T) {
	t.Parallel()

	h := replay.NewHandler(100)
	c := &fakeConsumer{id: "A", role: message.RoleParticipant}
	b := New(h, testThreshold, nil, nil, nil, nil)

	first := b.Broadcast("S", []Consumer{c}, message.NewStatusChange("running"))
	second := b.Broadcast("S", []Consumer{c}, message.NewStatusChange("idle"))

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	recorded := h.ReplayAfter("S", 0)
	require.Len(t, recorded, 2)
	assert.Equal(t, "running", recorded[0].Payload.Status)
	assert.Equal(t, "idle", recorded[1].Payload.Status)
}

func TestSendToIsNotSequenced(t *testing.T) {
	t.Parallel()

	h := replay.NewHandler(100)
	c := &fakeConsumer{id: "A", role: message.RoleParticipant}
	b := New(h, testThreshold, nil, nil, nil, nil)

	require.NoError(t, b.SendTo(c, message.NewErrorMessage("rate_limit", "slow down")))

	assert.Len(t, c.frames(), 1)
	assert.Equal(t, uint64(0), h.CurrentSeq("S"))
}

func TestSendSequencedCarriesEnvelope(t *testing.T) {
	t.Parallel()

	h := replay.NewHandler(100)
	c := &fakeConsumer{id: "A", role: message.RoleParticipant}
	b := New(h, testThreshold, nil, nil, nil, nil)

	seqMsg := h.Record("S", message.NewStatusChange("idle"))
	require.NoError(t, b.SendSequenced(c, seqMsg))

	require.Len(t, c.frames(), 1)
	assert.Contains(t, c.frames()[0], `"seq":1`)
	assert.Contains(t, c.frames()[0], `"status_change"`)
}

func TestPresenceBroadcast(t *testing.T) {
	t.Parallel()

	p := &fakeConsumer{id: "P", role: message.RoleParticipant}
	o := &fakeConsumer{id: "O", role: message.RoleObserver}
	b := New(replay.NewHandler(100), testThreshold, nil, nil, nil, nil)

	b.BroadcastPresence("S", []Consumer{p, o})

	require.Len(t, p.frames(), 1)
	assert.Contains(t, p.frames()[0], `"presence_update"`)
	assert.Contains(t, p.frames()[0], `"consumer_id":"P"`)
	assert.Contains(t, p.frames()[0], `"consumer_id":"O"`)
	// Presence is a semantic message: observers get it too.
	assert.Len(t, o.frames(), 1)
}
