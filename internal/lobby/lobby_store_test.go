package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProducesUniqueCodes(t *testing.T) {
	env := newTestEnv(t, 5)
	const n = 200

	var wg sync.WaitGroup
	codes := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lob, err := env.store.Create(uuid.New(), "")
			if assert.NoError(t, err) {
				codes <- lob.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool, n)
	for code := range codes {
		assert.Regexp(t, `^[A-Z]{4}$`, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, env.store.Len())
}

func TestCreateRegeneratesOnCollision(t *testing.T) {
	env := newTestEnv(t, 5)
	queue := []string{"ABCD", "ABCD", "ABCD", "WXYZ"}
	env.store.newCode = func() string {
		code := queue[0]
		queue = queue[1:]
		return code
	}

	first, err := env.store.Create(uuid.New(), "")
	require.NoError(t, err)
	second, err := env.store.Create(uuid.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "ABCD", first.Code)
	assert.Equal(t, "WXYZ", second.Code)
	assert.Empty(t, queue)
}

func TestGetUnknownCode(t *testing.T) {
	env := newTestEnv(t, 5)
	_, err := env.store.Get("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.store.Disconnect("NOPE", uuid.New()), ErrNotFound)
}

func TestDestroyIsIdempotentAndFreesCode(t *testing.T) {
	env := newTestEnv(t, 5)
	env.store.newCode = func() string { return "SAME" }

	lob, err := env.store.Create(uuid.New(), "")
	require.NoError(t, err)

	env.store.Destroy(lob.Code, "test")
	env.store.Destroy(lob.Code, "test")
	env.store.Destroy("GONE", "test")

	_, err = env.store.Get("SAME")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"SAME"}, env.bc.released, "release happens once")

	again, err := env.store.Create(uuid.New(), "")
	require.NoError(t, err, "a destroyed code may be reused")
	assert.Equal(t, "SAME", again.Code)
	assert.NotSame(t, lob, again)
}

// releaseHook runs onRelease before the group is dropped.
type releaseHook struct {
	*recordingBroadcaster
	onRelease func(code string)
}

func (b *releaseHook) Release(code string) {
	if b.onRelease != nil {
		b.onRelease(code)
	}
	b.recordingBroadcaster.Release(code)
}

func TestDestroyKeepsCodeUntilGroupReleased(t *testing.T) {
	env := newTestEnv(t, 5)
	env.store.newCode = func() string { return "ABCD" }
	hook := &releaseHook{recordingBroadcaster: env.bc}
	env.store.deps.Broadcaster = hook

	old, err := env.store.Create(uuid.New(), "")
	require.NoError(t, err)

	newHost := uuid.New()
	created := make(chan *Lobby, 1)
	hook.onRelease = func(code string) {
		hook.onRelease = nil
		go func() {
			lob, err := env.store.Create(newHost, "")
			assert.NoError(t, err)
			created <- lob
		}()
		// Give the racing Create every chance to slip in before the release.
		select {
		case lob := <-created:
			created <- lob
		case <-time.After(50 * time.Millisecond):
		}
	}

	env.store.Destroy(old.Code, "test")

	var fresh *Lobby
	select {
	case fresh = <-created:
	case <-time.After(5 * time.Second):
		t.Fatal("create did not finish")
	}
	assert.NotSame(t, old, fresh)
	assert.Equal(t, "ABCD", fresh.Code)

	live, err := env.store.Get("ABCD")
	require.NoError(t, err)
	assert.Same(t, fresh, live)

	env.bc.mu.Lock()
	defer env.bc.mu.Unlock()
	assert.Equal(t, []uuid.UUID{newHost}, env.bc.groups["ABCD"], "new host keeps its subscription")
}

func TestListSummaries(t *testing.T) {
	env := newTestEnv(t, 5)
	a, _ := env.newLobbyWithPlayers(t, 2)
	b, _ := env.newLobbyWithPlayers(t, 3)

	byCode := make(map[string]Summary)
	for _, s := range env.store.List() {
		byCode[s.Code] = s
	}
	require.Len(t, byCode, 2)
	assert.Equal(t, 2, byCode[a.Code].Players)
	assert.Equal(t, 3, byCode[b.Code].Players)

	env.store.Shutdown()
	assert.Empty(t, env.store.List())
	assert.Equal(t, 0, env.store.Len())

	_, err := env.store.Create(uuid.New(), "")
	assert.ErrorIs(t, err, ErrShuttingDown)
}
