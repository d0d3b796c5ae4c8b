package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetloop/callcore/internal/core"
)

func TestBackgroundEndsCallAndMarksInactive(t *testing.T) {
	h := newHarness(t)
	h.active(t)
	h.events.clear()

	require.NoError(t, h.sess.HandleBackground())

	snap := h.sess.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.Flags.Inactive, "screen still mounted, controls render disabled")
	assert.False(t, snap.Flags.Started)
	assert.GreaterOrEqual(t, h.media.releaseCount(), 1, "camera must not stay on in background")
	assert.Equal(t, 1, h.signal.countSent("call-end"))
	assert.Equal(t, 1, h.events.count(func(e core.Event) bool {
		ended, ok := e.(core.CallEnded)
		return ok && ended.Reason == core.EndReasonBackground
	}))
}

func TestBackgroundWhileSearchingStopsQuietly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sess.Start(context.Background()))
	h.events.clear()

	require.NoError(t, h.sess.HandleBackground())

	snap := h.sess.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.Flags.Inactive)
	assert.Equal(t, 1, h.media.releaseCount())
	assert.Zero(t, h.events.count(func(e core.Event) bool {
		_, ok := e.(core.CallEnded)
		return ok
	}), "no call existed, no CallEnded")
}

func TestBackgroundWhileIdleIsNoOp(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sess.HandleBackground())
	assert.Zero(t, h.media.releaseCount())
	assert.Empty(t, h.events.all())
}

func TestTransientInactiveKeepsCall(t *testing.T) {
	h := newHarness(t)
	h.active(t)
	h.events.clear()

	require.NoError(t, h.sess.HandleTransientInactive())

	snap := h.sess.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.NotNil(t, snap.Call)
	assert.Empty(t, h.events.all(), "a notification shade pull must not disturb the call")
}

func TestForegroundRefreshesViewKeys(t *testing.T) {
	h := newHarness(t)
	h.active(t)
	before := h.sess.Snapshot()
	h.events.clear()

	require.NoError(t, h.sess.HandleForeground())

	after := h.sess.Snapshot()
	assert.NotEqual(t, before.LocalKey, after.LocalKey)
	assert.NotEqual(t, before.RemoteKey, after.RemoteKey)
	assert.Equal(t, before.Local.StreamID, after.Local.StreamID, "streams themselves are untouched")
	assert.Equal(t, 1, h.events.count(func(e core.Event) bool {
		v, ok := e.(core.LocalStreamChanged)
		return ok && v.Handle.StreamID == "local-1"
	}))
	assert.Equal(t, 1, h.events.count(func(e core.Event) bool {
		v, ok := e.(core.RemoteStreamChanged)
		return ok && v.Handle.StreamID == "remote-1"
	}))
	// Camera state is re-announced for the peer.
	assert.Equal(t, 1, h.signal.countSent("camera-state:on"))
}

func TestForegroundKeepsUserDisabledCameraOff(t *testing.T) {
	h := newHarness(t)
	h.active(t)
	require.NoError(t, h.sess.ToggleCam(context.Background()))

	require.NoError(t, h.sess.HandleForeground())

	assert.False(t, h.sess.Snapshot().Flags.CamOn, "explicit user disable is sticky")
	assert.Equal(t, 2, h.signal.countSent("camera-state:off"), "toggle plus foreground re-announce")
}

func TestForegroundAfterTransientInactiveSkipsRefresh(t *testing.T) {
	h := newHarness(t)
	h.active(t)
	require.NoError(t, h.sess.HandleTransientInactive())
	before := h.sess.Snapshot()
	h.events.clear()

	require.NoError(t, h.sess.HandleForeground())

	after := h.sess.Snapshot()
	assert.Equal(t, before.LocalKey, after.LocalKey, "textures were never invalidated")
	assert.Equal(t, before.RemoteKey, after.RemoteKey)
	assert.Empty(t, h.events.all())
	// Camera state is still re-announced.
	assert.Equal(t, 1, h.signal.countSent("camera-state:on"))
}

func TestLifecycleAnnouncesPresence(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sess.HandleBackground())
	assert.Equal(t, 1, h.signal.countSent("presence:away"))

	require.NoError(t, h.sess.HandleForeground())
	assert.Equal(t, 1, h.signal.countSent("presence:online"))
}

func TestHandlePiPAnnouncesOnce(t *testing.T) {
	h := newHarness(t)
	h.active(t)

	require.NoError(t, h.sess.HandlePiP(true))
	require.NoError(t, h.sess.HandlePiP(true))
	assert.Equal(t, 1, h.signal.countSent("pip-state"))

	require.NoError(t, h.sess.HandlePiP(false))
	assert.Equal(t, 2, h.signal.countSent("pip-state"))
}
