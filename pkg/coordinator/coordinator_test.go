// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/state"
	"github.com/agentmux/agentmux/pkg/state/mocks"
)

type fakeBackendSession struct {
	id       string
	messages chan message.Unified

	mu     sync.Mutex
	closed bool
}

func (f *fakeBackendSession) SessionID() string { return f.id }

func (f *fakeBackendSession) Send(context.Context, message.Unified) error { return nil }

func (f *fakeBackendSession) SendRaw(context.Context, []byte) error { return nil }

func (f *fakeBackendSession) Messages() <-chan message.Unified { return f.messages }

func (f *fakeBackendSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

// fakeDialer is an always-successful outbound adapter.
type fakeDialer struct{}

func (*fakeDialer) Name() string { return "fake" }

func (*fakeDialer) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Streaming: true, Availability: adapter.AvailabilityAvailable}
}

func (*fakeDialer) Connect(_ context.Context, sessionID string, _ adapter.ConnectOptions) (adapter.BackendSession, error) {
	return &fakeBackendSession{id: sessionID, messages: make(chan message.Unified, 8)}, nil
}

type captureConn struct {
	id   string
	role string

	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) ID() string          { return c.id }
func (c *captureConn) Role() string        { return c.role }
func (c *captureConn) BufferedAmount() int { return 0 }

func (c *captureConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *captureConn) Close(string) error { return nil }

func (c *captureConn) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.State.Backend = "memory"
	return &cfg
}

func newCoordinator(t *testing.T, cfg *config.Config) (*Coordinator, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore()
	resolver := adapter.NewResolver()
	require.NoError(t, resolver.Register(&fakeDialer{}))
	c, err := New(Options{Config: cfg, Store: store, Resolver: resolver})
	require.NoError(t, err)
	return c, store
}

func attachConn(t *testing.T, sess *session.Session, id string) *captureConn {
	t.Helper()
	conn := &captureConn{id: id, role: message.RoleParticipant}
	sess.AttachConsumer(conn)
	return conn
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	resolver := adapter.NewResolver()
	store := state.NewMemoryStore()

	_, err := New(Options{Store: store, Resolver: resolver})
	require.True(t, errors.IsValidation(err))
	_, err = New(Options{Config: cfg, Resolver: resolver})
	require.True(t, errors.IsValidation(err))
	_, err = New(Options{Config: cfg, Store: store})
	require.True(t, errors.IsValidation(err))
}

func TestCreateSessionDefaults(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{AdapterName: "fake", CWD: "/tmp/project"})
	require.NoError(t, err)

	_, err = uuid.Parse(sess.ID())
	require.NoError(t, err, "default session id should be a UUID")
	assert.Equal(t, session.LifecycleAwaitingBackend, sess.Lifecycle())
	assert.Equal(t, "/tmp/project", sess.State().CWD)
	assert.Equal(t, sess.ID(), sess.State().SessionID)

	got, ok := c.Get(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, got)

	ps, err := store.Load(t.Context(), sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project", ps.State.CWD)

	infos, err := store.LoadLauncherState(t.Context())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "fake", infos[0].AdapterName)
}

func TestCreateSessionSeedsStateAndName(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{
		ID:             "sess-1",
		AdapterName:    "fake",
		CWD:            "/work",
		Model:          "opus",
		PermissionMode: "acceptEdits",
		Name:           "refactor",
	})
	require.NoError(t, err)

	st := sess.State()
	assert.Equal(t, "opus", st.Model)
	assert.Equal(t, "acceptEdits", st.PermissionMode)
	assert.Equal(t, "refactor", sess.Name())
}

func TestCreateSessionRejectsUnknownAdapter(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	_, err := c.CreateSession(t.Context(), CreateOptions{AdapterName: "nope"})
	require.True(t, errors.IsValidation(err))

	_, err = c.CreateSession(t.Context(), CreateOptions{})
	require.True(t, errors.IsValidation(err))
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	_, err := c.CreateSession(t.Context(), CreateOptions{ID: "dup", AdapterName: "fake"})
	require.NoError(t, err)
	_, err = c.CreateSession(t.Context(), CreateOptions{ID: "dup", AdapterName: "fake"})
	require.True(t, errors.IsAlreadyExists(err))
}

func TestCreateSessionEnforcesCap(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrentSessions = 2
	c, _ := newCoordinator(t, cfg)

	_, err := c.CreateSession(t.Context(), CreateOptions{AdapterName: "fake"})
	require.NoError(t, err)
	_, err = c.CreateSession(t.Context(), CreateOptions{AdapterName: "fake"})
	require.NoError(t, err)

	_, err = c.CreateSession(t.Context(), CreateOptions{AdapterName: "fake"})
	require.True(t, errors.IsValidation(err))
	assert.Len(t, c.All(), 2)
}

func TestSetSessionNameBroadcastsAndPersists(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	conn := attachConn(t, sess, "c1")

	c.SetSessionName("s1", "triage build failure")

	assert.Equal(t, "triage build failure", sess.Name())
	frames := conn.payloads()
	require.Len(t, frames, 1)
	assert.Equal(t, "session_name_update", gjson.Get(frames[0], "type").String())
	assert.Equal(t, "triage build failure", gjson.Get(frames[0], "name").String())

	infos, err := store.LoadLauncherState(t.Context())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "triage build failure", infos[0].Name)

	// Unknown ids are ignored.
	c.SetSessionName("missing", "whatever")
}

func TestMarkConnected(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)

	c.MarkConnected("s1", 4242)

	assert.Equal(t, 4242, sess.PID())
	assert.Equal(t, session.LifecycleActive, sess.Lifecycle())

	infos, err := store.LoadLauncherState(t.Context())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 4242, infos[0].PID)

	c.MarkConnected("missing", 1)
}

func TestSetBackendSessionIDIsWriteOnce(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)

	c.SetBackendSessionID("s1", "be-1")
	c.SetBackendSessionID("s1", "be-2")

	assert.Equal(t, "be-1", sess.BackendSessionID())

	infos, err := store.LoadLauncherState(t.Context())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "be-1", infos[0].BackendSessionID)
}

func TestRemoveSessionCleansStore(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	_, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)

	c.RemoveSession(t.Context(), "s1")

	_, ok := c.Get("s1")
	assert.False(t, ok)
	_, err = store.Load(t.Context(), "s1")
	require.Error(t, err)

	infos, err := store.LoadLauncherState(t.Context())
	require.NoError(t, err)
	assert.Empty(t, infos)

	// Removing again is a no-op.
	c.RemoveSession(t.Context(), "s1")
}

func TestReapIdleSessionClosesAndForgets(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())

	_, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)

	ch, unsub := c.Bus().Subscribe()
	defer unsub()

	require.NoError(t, c.ReapIdleSession(t.Context(), "s1"))

	_, ok := c.Get("s1")
	assert.False(t, ok)
	_, err = store.Load(t.Context(), "s1")
	require.Error(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == events.KindSessionClosed && ev.SessionID == "s1" {
				return
			}
		case <-deadline:
			t.Fatal("session:closed was not emitted")
		}
	}
}

func TestIdleViews(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	s1, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	_, err = c.CreateSession(t.Context(), CreateOptions{ID: "s2", AdapterName: "fake"})
	require.NoError(t, err)
	attachConn(t, s1, "c1")

	views := c.IdleViews()
	require.Len(t, views, 2)
	byID := make(map[string]int, len(views))
	for _, v := range views {
		byID[v.SessionID] = v.Consumers
		assert.False(t, v.BackendConnected)
		assert.False(t, v.LastActivity.IsZero())
	}
	assert.Equal(t, 1, byID["s1"])
	assert.Equal(t, 0, byID["s2"])
}

func TestRestoreRehydratesSessions(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())
	ctx := t.Context()

	livePID := os.Getpid()
	history := []message.Unified{message.NewUserMessage("hello there")}
	pending := []message.Unified{message.NewUserMessage("queued while away")}

	require.NoError(t, store.Save(ctx, state.PersistedSession{
		SchemaVersion:   state.SnapshotSchemaVersion,
		ID:              "alive",
		State:           session.State{SessionID: "alive", CWD: "/work/a", Model: "opus"},
		MessageHistory:  history,
		PendingMessages: pending,
		CreatedAt:       time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Save(ctx, state.PersistedSession{
		SchemaVersion: state.SnapshotSchemaVersion,
		ID:            "dead",
		State:         session.State{SessionID: "dead", CWD: "/work/b"},
		CreatedAt:     time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Save(ctx, state.PersistedSession{
		SchemaVersion: state.SnapshotSchemaVersion,
		ID:            "archived",
		State:         session.State{SessionID: "archived"},
		Archived:      true,
		CreatedAt:     time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.SaveLauncherState(ctx, []state.SessionInfo{
		{ID: "alive", AdapterName: "fake", Name: "resumable", PID: livePID, BackendSessionID: "be-9"},
		{ID: "dead", AdapterName: "fake"},
	}))

	require.NoError(t, c.Restore(ctx))

	alive, ok := c.Get("alive")
	require.True(t, ok)
	assert.Equal(t, session.LifecycleAwaitingBackend, alive.Lifecycle())
	assert.Equal(t, livePID, alive.PID())
	assert.Equal(t, "be-9", alive.BackendSessionID())
	assert.Equal(t, "resumable", alive.Name())
	assert.Equal(t, "/work/a", alive.State().CWD)
	assert.Equal(t, 1, alive.HistoryLen())
	assert.Len(t, alive.PendingMessages(), 1)

	dead, ok := c.Get("dead")
	require.True(t, ok)
	assert.Equal(t, session.LifecycleDegraded, dead.Lifecycle())
	assert.Zero(t, dead.PID())

	_, ok = c.Get("archived")
	assert.False(t, ok)

	// Idempotent: nothing doubles up, live records stay untouched.
	require.NoError(t, c.Restore(ctx))
	assert.Len(t, c.All(), 2)
	again, _ := c.Get("alive")
	assert.Same(t, alive, again)
}

func TestRestoreBypassesSessionCap(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxConcurrentSessions = 1
	c, store := newCoordinator(t, cfg)
	ctx := t.Context()

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, store.Save(ctx, state.PersistedSession{
			SchemaVersion: state.SnapshotSchemaVersion,
			ID:            id,
			State:         session.State{SessionID: id},
			CreatedAt:     time.Now().Add(-time.Hour),
		}))
	}

	require.NoError(t, c.Restore(ctx))
	assert.Len(t, c.All(), 2)

	_, err := c.CreateSession(ctx, CreateOptions{AdapterName: "fake"})
	require.True(t, errors.IsValidation(err))
}

func TestRestoreWithoutLauncherStateUsesDefaultAdapter(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DefaultAdapter = "fake"
	c, store := newCoordinator(t, cfg)
	ctx := t.Context()

	// A snapshot with no launcher-state row at all: the adapter name must
	// fall back to something the resolver can serve, or the session could
	// never reconnect.
	require.NoError(t, store.Save(ctx, state.PersistedSession{
		SchemaVersion: state.SnapshotSchemaVersion,
		ID:            "orphan",
		State:         session.State{SessionID: "orphan", CWD: "/work/c"},
		CreatedAt:     time.Now().Add(-time.Hour),
	}))

	require.NoError(t, c.Restore(ctx))

	sess, ok := c.Get("orphan")
	require.True(t, ok)
	assert.Equal(t, "fake", sess.AdapterName())

	require.NoError(t, c.Bridge().ConnectBackend(ctx, "orphan", adapter.ConnectOptions{}))
	assert.True(t, sess.BackendConnected())
}

func TestAutoNameOnFirstTurn(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())
	c.Start(t.Context())
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	unnamed, err := c.CreateSession(t.Context(), CreateOptions{ID: "unnamed", AdapterName: "fake"})
	require.NoError(t, err)
	named, err := c.CreateSession(t.Context(), CreateOptions{ID: "named", AdapterName: "fake", Name: "keep me"})
	require.NoError(t, err)

	c.Bus().Emit(events.KindFirstTurnCompleted, "unnamed", events.FirstTurnPayload{
		FirstUserMessage: "Fix the flaky websocket test\nIt fails every third run.",
	})
	require.Eventually(t, func() bool {
		return unnamed.Name() == "Fix the flaky websocket test"
	}, 2*time.Second, 10*time.Millisecond)

	// A session that already has a name is left alone.
	c.Bus().Emit(events.KindFirstTurnCompleted, "named", events.FirstTurnPayload{
		FirstUserMessage: "something else entirely",
	})
	c.Bus().Emit(events.KindFirstTurnCompleted, "unnamed", events.FirstTurnPayload{
		FirstUserMessage: "second turn text",
	})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "keep me", named.Name())
	assert.Equal(t, "Fix the flaky websocket test", unnamed.Name())
}

func TestDeriveSessionName(t *testing.T) {
	t.Parallel()

	long := "Refactor the session registry so that restores bypass the concurrency cap entirely"
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Fix the build", "Fix the build"},
		{"first line only", "Fix the build\nand then deploy", "Fix the build"},
		{"collapse whitespace", "  Fix   the\tbuild  ", "Fix the build"},
		{"empty", "", ""},
		{"whitespace only", " \n\t ", ""},
		{"newline first", "\nsecond line is first text", ""},
		{"long input truncated on word boundary", long, "Refactor the session registry so that restores..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := deriveSessionName(tc.in)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, len([]rune(got)), maxDerivedNameLen+3)
		})
	}
}

func TestCapabilitiesReadyBroadcasts(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	conn := attachConn(t, sess, "c1")

	caps := &message.CapabilitySet{
		Models:       []string{"opus", "sonnet"},
		AgentVersion: "2.1.0",
	}
	c.capabilitiesReady("s1", caps, false)

	frames := conn.payloads()
	require.Len(t, frames, 1)
	assert.Equal(t, "capabilities_ready", gjson.Get(frames[0], "type").String())
	assert.Equal(t, "2.1.0", gjson.Get(frames[0], "capabilities.agent_version").String())
	assert.False(t, gjson.Get(frames[0], "partial").Bool())
}

func TestCapabilitiesReadyTimeoutUsesKnownCaps(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	sess.SetCapabilities(&message.CapabilitySet{AgentVersion: "1.0.0"})
	conn := attachConn(t, sess, "c1")

	c.capabilitiesReady("s1", nil, true)

	frames := conn.payloads()
	require.Len(t, frames, 1)
	assert.True(t, gjson.Get(frames[0], "partial").Bool())
	assert.Equal(t, "1.0.0", gjson.Get(frames[0], "capabilities.agent_version").String())

	// Unknown sessions are a no-op.
	c.capabilitiesReady("missing", nil, true)
}

func TestCanonicalVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1.2.3", canonicalVersion("1.2.3"))
	assert.Equal(t, "v2.0.0", canonicalVersion("v2.0.0"))
	assert.Equal(t, "", canonicalVersion("not-a-version"))
}

func TestCheckBackendVersionNeverPanics(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MinBackendVersion = "2.0.0"
	c, _ := newCoordinator(t, cfg)

	// Old, new, and unparseable versions are all advisory-only.
	c.checkBackendVersion("s1", "1.9.9")
	c.checkBackendVersion("s1", "2.0.1")
	c.checkBackendVersion("s1", "garbage")
	c.checkBackendVersion("s1", "")
}

func TestDropConsumerDetachesAndNotifies(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	attachConn(t, sess, "c1")

	ch, unsub := c.Bus().Subscribe()
	defer unsub()

	c.dropConsumer("s1", "c1")
	assert.Zero(t, sess.ConsumerCount())

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindConsumerDisconnected, ev.Kind)
		payload, ok := ev.Payload.(events.ConsumerPayload)
		require.True(t, ok)
		assert.Equal(t, "c1", payload.ConsumerID)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer:disconnected was not emitted")
	}

	// Unknown session or consumer: no-op.
	c.dropConsumer("missing", "c1")
	c.dropConsumer("s1", "gone")
}

func TestAllOrdersByCreation(t *testing.T) {
	t.Parallel()
	c, _ := newCoordinator(t, testConfig())

	ids := []string{"zeta", "alpha", "mid"}
	for _, id := range ids {
		_, err := c.CreateSession(t.Context(), CreateOptions{ID: id, AdapterName: "fake"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	all := c.All()
	require.Len(t, all, 3)
	got := make([]string, len(all))
	for i, sess := range all {
		got[i] = sess.ID()
	}
	assert.Equal(t, ids, got)
}

func newMockedCoordinator(t *testing.T) (*Coordinator, *mocks.MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	resolver := adapter.NewResolver()
	require.NoError(t, resolver.Register(&fakeDialer{}))
	c, err := New(Options{Config: testConfig(), Store: store, Resolver: resolver})
	require.NoError(t, err)
	return c, store
}

func TestPersistenceFailuresAreTolerated(t *testing.T) {
	t.Parallel()
	c, store := newMockedCoordinator(t)

	storeErr := errors.NewStorageError("disk full", nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(storeErr).Times(2)
	store.EXPECT().SaveLauncherState(gomock.Any(), gomock.Any()).Return(storeErr).Times(3)
	store.EXPECT().Remove(gomock.Any(), "s1").Return(storeErr)

	// Snapshot writes are best effort: a failing store never surfaces to
	// registry callers.
	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)

	c.SetSessionName("s1", "still renamed")
	assert.Equal(t, "still renamed", sess.Name())

	c.RemoveSession(t.Context(), "s1")
	_, ok := c.Get("s1")
	assert.False(t, ok)
}

func TestRestoreToleratesLauncherStateFailure(t *testing.T) {
	t.Parallel()
	c, store := newMockedCoordinator(t)

	store.EXPECT().LoadLauncherState(gomock.Any()).
		Return(nil, errors.NewStorageError("launcher state unreadable", nil))
	store.EXPECT().LoadAll(gomock.Any()).Return([]state.PersistedSession{{
		SchemaVersion: state.SnapshotSchemaVersion,
		ID:            "r1",
		State:         session.State{SessionID: "r1"},
		CreatedAt:     time.Now().Add(-time.Hour),
	}}, nil)
	store.EXPECT().SaveLauncherState(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, c.Restore(t.Context()))

	sess, ok := c.Get("r1")
	require.True(t, ok)
	assert.Equal(t, session.LifecycleDegraded, sess.Lifecycle())
}

func TestRestoreAbortsWhenSnapshotsUnreadable(t *testing.T) {
	t.Parallel()
	c, store := newMockedCoordinator(t)

	store.EXPECT().LoadLauncherState(gomock.Any()).Return(nil, nil)
	store.EXPECT().LoadAll(gomock.Any()).
		Return(nil, errors.NewStorageError("corrupt database", nil))

	err := c.Restore(t.Context())
	require.True(t, errors.IsStorage(err))
	assert.Empty(t, c.All())
}

func TestShutdownTearsDownSessions(t *testing.T) {
	t.Parallel()
	c, store := newCoordinator(t, testConfig())
	c.Start(t.Context())

	sess, err := c.CreateSession(t.Context(), CreateOptions{ID: "s1", AdapterName: "fake"})
	require.NoError(t, err)
	require.NoError(t, c.Bridge().ConnectBackend(t.Context(), "s1", adapter.ConnectOptions{}))
	require.True(t, sess.BackendConnected())

	require.NoError(t, c.Shutdown(context.Background()))

	assert.Empty(t, c.All())
	assert.Equal(t, session.LifecycleClosed, sess.Lifecycle())
	_, err = store.Load(context.Background(), "s1")
	require.Error(t, err, "store should be empty after teardown")
}
