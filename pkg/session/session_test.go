// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/message"
)

type fakeConn struct {
	id   string
	role string
}

func (f *fakeConn) ID() string          { return f.id }
func (f *fakeConn) Role() string        { return f.role }
func (f *fakeConn) BufferedAmount() int { return 0 }
func (f *fakeConn) Send([]byte) error   { return nil }
func (f *fakeConn) Close(string) error  { return nil }

type fakeBackend struct {
	mu     sync.Mutex
	sent   []message.Unified
	raw    [][]byte
	closed bool
}

func (f *fakeBackend) Send(msg message.Unified) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeBackend) SendRaw(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, data)
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New(Options{ID: "s1", AdapterName: "claude-cli"})
}

func TestNewSessionDefaults(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	assert.Equal(t, "s1", s.ID())
	assert.Equal(t, "claude-cli", s.AdapterName())
	assert.Equal(t, LifecycleAwaitingBackend, s.Lifecycle())
	assert.Equal(t, StatusUnknown, s.LastStatus())
	assert.Equal(t, "s1", s.State().SessionID)
	assert.False(t, s.BackendConnected())
	assert.Zero(t, s.ConsumerCount())
}

func TestSetStatePinsSessionID(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.SetState(State{SessionID: "someone-else", Model: "opus-4"})

	got := s.State()
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "opus-4", got.Model)
}

func TestBackendSessionIDFirstAssignmentWins(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	assert.True(t, s.SetBackendSessionID("b1"))
	assert.True(t, s.SetBackendSessionID("b1"), "re-assigning the same id is fine")
	assert.False(t, s.SetBackendSessionID("b2"))
	assert.Equal(t, "b1", s.BackendSessionID())
}

func TestHistoryCapDropsOldest(t *testing.T) {
	t.Parallel()

	s := New(Options{ID: "s1", AdapterName: "claude-cli", MaxHistory: 3})
	for _, text := range []string{"m1", "m2", "m3", "m4"} {
		s.AppendHistory(message.NewUserMessage(text))
	}

	history := s.HistorySnapshot()
	require.Len(t, history, 3)
	assert.Equal(t, "m2", history[0].JoinedText())
	assert.Equal(t, "m4", history[2].JoinedText())
}

func TestReplaceHistoryAt(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	i := s.AppendHistory(message.NewUserMessage("original"))

	assert.True(t, s.ReplaceHistoryAt(i, message.NewUserMessage("amended")))
	assert.Equal(t, "amended", s.HistorySnapshot()[i].JoinedText())

	assert.False(t, s.ReplaceHistoryAt(5, message.NewUserMessage("nope")))
	assert.False(t, s.ReplaceHistoryAt(-1, message.NewUserMessage("nope")))
}

func TestSetHistoryTrimsToCap(t *testing.T) {
	t.Parallel()

	s := New(Options{ID: "s1", AdapterName: "claude-cli", MaxHistory: 2})
	s.SetHistory([]message.Unified{
		message.NewUserMessage("a"),
		message.NewUserMessage("b"),
		message.NewUserMessage("c"),
	})

	history := s.HistorySnapshot()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].JoinedText())
}

func TestPendingPermissionCap(t *testing.T) {
	t.Parallel()

	s := New(Options{ID: "s1", AdapterName: "claude-cli", MaxPendingPermissions: 2})
	evicted, err := s.StorePendingPermission(&message.PermissionRequest{RequestID: "r1", ToolName: "Bash"})
	require.NoError(t, err)
	assert.Nil(t, evicted)
	evicted, err = s.StorePendingPermission(&message.PermissionRequest{RequestID: "r2", ToolName: "Edit"})
	require.NoError(t, err)
	assert.Nil(t, evicted)

	// Overflow evicts the oldest entry and keeps the newcomer.
	evicted, err = s.StorePendingPermission(&message.PermissionRequest{RequestID: "r3", ToolName: "Write"})
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "r1", evicted.RequestID)
	assert.Len(t, s.PendingPermissions(), 2)

	// Updating an already-stored request does not count against the cap.
	evicted, err = s.StorePendingPermission(&message.PermissionRequest{RequestID: "r2", ToolName: "Edit"})
	require.NoError(t, err)
	assert.Nil(t, evicted)

	_, ok := s.ClearPendingPermission("r1")
	assert.False(t, ok, "evicted request must be gone")

	req, ok := s.ClearPendingPermission("r2")
	require.True(t, ok)
	assert.Equal(t, "Edit", req.ToolName)

	_, ok = s.ClearPendingPermission("r2")
	assert.False(t, ok, "second clear must miss")

	req, ok = s.ClearPendingPermission("r3")
	require.True(t, ok)
	assert.Equal(t, "Write", req.ToolName)
}

func TestPendingInitializeSingleFlight(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	ch, ok := s.StorePendingInitialize("req-1")
	require.True(t, ok)

	_, ok = s.StorePendingInitialize("req-2")
	assert.False(t, ok, "one negotiation at a time")

	assert.False(t, s.ResolvePendingInitialize("wrong-id", nil))

	caps := &message.CapabilitySet{AgentVersion: "2.1.0"}
	require.True(t, s.ResolvePendingInitialize("req-1", caps))

	select {
	case got := <-ch:
		assert.Equal(t, "2.1.0", got.AgentVersion)
	case <-time.After(time.Second):
		t.Fatal("resolution never arrived")
	}
	assert.Equal(t, caps, s.Capabilities())

	_, ok = s.StorePendingInitialize("req-3")
	assert.True(t, ok, "slot frees after resolution")
}

func TestCancelPendingInitializeClosesChannel(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	ch, ok := s.StorePendingInitialize("req-1")
	require.True(t, ok)

	s.CancelPendingInitialize()

	select {
	case _, open := <-ch:
		assert.False(t, open, "cancel should close the channel")
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
	s.CancelPendingInitialize() // no pending slot, must not panic
}

func TestPendingPassthroughRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	ch, ok := s.StorePendingPassthrough("p-1")
	require.True(t, ok)

	_, ok = s.StorePendingPassthrough("p-1")
	assert.False(t, ok, "duplicate request id refused")

	reply := message.Unified{Type: message.TypeControlResponse, Metadata: map[string]any{"request_id": "p-1"}}
	require.True(t, s.ResolvePendingPassthrough("p-1", reply))
	assert.False(t, s.ResolvePendingPassthrough("p-1", reply), "slot is gone after resolve")

	got := <-ch
	assert.Equal(t, message.TypeControlResponse, got.Type)
}

func TestCancelPendingPassthroughsClosesAll(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	ch1, _ := s.StorePendingPassthrough("p-1")
	ch2, _ := s.StorePendingPassthrough("p-2")

	s.CancelPendingPassthroughs()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
}

func TestBindBackendExclusive(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	first := &fakeBackend{}
	require.True(t, s.BindBackend(first, false, nil))
	assert.False(t, s.BindBackend(&fakeBackend{}, true, nil), "second bind refused while one is live")
	assert.True(t, s.BackendConnected())
	assert.False(t, s.BackendInverted())

	got, _ := s.UnbindBackend()
	assert.Same(t, first, got)
	assert.False(t, s.BackendConnected())

	require.True(t, s.BindBackend(&fakeBackend{}, true, nil))
	assert.True(t, s.BackendInverted())
}

func TestTrySendToBackend(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	assert.False(t, s.TrySendToBackend(message.NewInterrupt()), "no backend bound")
	assert.False(t, s.TrySendRawToBackend([]byte("{}")))

	b := &fakeBackend{}
	require.True(t, s.BindBackend(b, false, nil))

	assert.True(t, s.TrySendToBackend(message.NewUserMessage("hello")))
	assert.True(t, s.TrySendRawToBackend([]byte(`{"type":"ping"}`)))

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.sent, 1)
	assert.Equal(t, message.TypeUserMessage, b.sent[0].Type)
	require.Len(t, b.raw, 1)
}

func TestQueuedMessageSlot(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	_, ok := s.TakeQueuedMessage()
	assert.False(t, ok)

	s.SetQueuedMessage(message.NewUserMessage("first"))
	s.SetQueuedMessage(message.NewUserMessage("second"))

	msg, ok := s.TakeQueuedMessage()
	require.True(t, ok)
	assert.Equal(t, "second", msg.JoinedText(), "newer message replaces the held one")

	_, ok = s.TakeQueuedMessage()
	assert.False(t, ok)

	s.SetQueuedMessage(message.NewUserMessage("third"))
	assert.True(t, s.ClearQueuedMessage())
	assert.False(t, s.ClearQueuedMessage())
}

func TestPendingMessagesFIFO(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.EnqueuePendingMessage(message.NewUserMessage("one"))
	s.EnqueuePendingMessage(message.NewUserMessage("two"))
	s.EnqueuePendingMessage(message.NewUserMessage("three"))

	flushed := s.FlushPendingMessages()
	require.Len(t, flushed, 3)
	assert.Equal(t, "one", flushed[0].JoinedText())
	assert.Equal(t, "three", flushed[2].JoinedText())

	assert.Empty(t, s.FlushPendingMessages(), "queue drains on flush")
}

func TestAttachDetachConsumer(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	old := &fakeConn{id: "c1", role: message.RoleParticipant}
	assert.Nil(t, s.AttachConsumer(old))
	assert.Equal(t, 1, s.ConsumerCount())

	// Reconnect with the same consumer id replaces the socket.
	fresh := &fakeConn{id: "c1", role: message.RoleParticipant}
	replaced := s.AttachConsumer(fresh)
	assert.Same(t, old, replaced)
	assert.Equal(t, 1, s.ConsumerCount())

	// A close racing in from the stale socket must not evict the fresh one.
	assert.False(t, s.DetachConsumer(old))
	assert.Equal(t, 1, s.ConsumerCount())

	assert.True(t, s.DetachConsumer(fresh))
	assert.Zero(t, s.ConsumerCount())
}

func TestRateLimiterPersistsPerConsumer(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	a := s.RateLimiterFor("c1")
	b := s.RateLimiterFor("c1")
	c := s.RateLimiterFor("c2")

	assert.Same(t, a, b, "same consumer keeps its bucket across reconnects")
	assert.NotSame(t, a, c)
}

func TestSerializeNeverOverlaps(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Serialize(func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "serialized operations must never overlap")
}

func TestCommandRegistry(t *testing.T) {
	t.Parallel()

	r := NewCommandRegistry()
	r.RegisterCLI([]message.SlashCommandInfo{
		{Name: "/compact", Description: "Compact the conversation"},
		{Name: "cost"},
	})
	r.RegisterSkills([]string{"compact", "review"})

	cmd, ok := r.Lookup("/compact")
	require.True(t, ok)
	assert.Equal(t, SourceCLI, cmd.Source, "cli commands shadow skills of the same name")

	cmd, ok = r.Lookup("review")
	require.True(t, ok)
	assert.Equal(t, SourceSkill, cmd.Source)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "compact", all[0].Info.Name)
	assert.Equal(t, "cost", all[1].Info.Name)
	assert.Equal(t, "review", all[2].Info.Name)

	r.ClearDynamic()
	assert.Zero(t, r.Len())
	_, ok = r.Lookup("compact")
	assert.False(t, ok)
}

func TestSessionFieldsStayUnexported(t *testing.T) {
	t.Parallel()

	// Mutation goes through the methods on Session. Exporting a field
	// would let other packages bypass the per-session lock, so the struct
	// must stay opaque.
	st := reflect.TypeOf(Session{})
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		assert.False(t, f.IsExported(), "field %s must not be exported", f.Name)
	}
}
