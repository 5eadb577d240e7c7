package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesGroupOnly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub(4, logger)
	a, b, outsider := uuid.New(), uuid.New(), uuid.New()
	ca, _ := h.Register(a)
	cb, _ := h.Register(b)
	co, _ := h.Register(outsider)

	h.Subscribe("ABCD", a)
	h.Subscribe("ABCD", b)
	h.Broadcast("ABCD", protocol.LobbyClosed{Code: "ABCD", Reason: "test"})

	for _, c := range []*Client{ca, cb} {
		require.Len(t, c.OutChan, 1)
		assert.JSONEq(t, `{"type":"lobby-closed","payload":{"code":"ABCD","reason":"test"}}`, string(<-c.OutChan))
	}
	assert.Empty(t, co.OutChan)
}

func TestHubDropsWhenOutboxFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := NewHub(1, logger)
	id := uuid.New()
	c, _ := h.Register(id)

	h.Send(id, protocol.Welcome{ConnectionID: id})
	h.Send(id, protocol.Welcome{ConnectionID: id})

	assert.Len(t, c.OutChan, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestHubUnregisterAndRelease(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub(4, logger)
	a, b := uuid.New(), uuid.New()
	ca, _ := h.Register(a)
	h.Register(b)

	h.Subscribe("ABCD", a)
	h.Subscribe("WXYZ", a)
	h.Subscribe("ABCD", b)
	assert.Equal(t, 2, h.Members("ABCD"))

	h.Release("WXYZ")
	assert.Zero(t, h.Members("WXYZ"))

	codes := h.Unregister(a)
	assert.Equal(t, []string{"ABCD"}, codes)
	assert.Equal(t, 1, h.Members("ABCD"))
	_, open := <-ca.OutChan
	assert.False(t, open)

	// Sending to a gone connection is a no-op.
	h.Send(a, protocol.Welcome{})
	assert.Nil(t, h.Unregister(a))
}

func TestHubShutdown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub(4, logger)
	c, ok := h.Register(uuid.New())
	require.True(t, ok)

	h.Shutdown()
	h.Shutdown()

	select {
	case <-c.Quit():
	default:
		t.Fatal("client not told to quit")
	}
	_, ok = h.Register(uuid.New())
	assert.False(t, ok, "no new connections after shutdown")
	assert.Empty(t, h.Unregister(c.ID))
}
