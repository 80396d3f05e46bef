package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/testutil"
)

func TestRegistry_GetOrCreateReturnsSameSession(t *testing.T) {
	env := newTestEnv(t)

	a := env.registry.GetOrCreate(testGroup)
	b := env.registry.GetOrCreate(testGroup)
	assert.Same(t, a, b)
	assert.Equal(t, 1, env.events.count(domain.EventSessionCreated))
	assert.Equal(t, 1, env.registry.Len())

	other := env.registry.GetOrCreate("guild-2")
	assert.NotSame(t, a, other)
	assert.Equal(t, []string{testGroup, "guild-2"}, env.registry.GroupIDs())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	env := newTestEnv(t)

	sessions := make([]*Session, 20)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = env.registry.GetOrCreate(testGroup)
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, env.events.count(domain.EventSessionCreated))
}

func TestRegistry_Get(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.registry.Get(testGroup)
	assert.False(t, ok)

	created := env.registry.GetOrCreate(testGroup)
	got, ok := env.registry.Get(testGroup)
	require.True(t, ok)
	assert.Same(t, created, got)
}

func TestRegistry_DestroyMissingIsNoop(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.registry.Destroy(context.Background(), "nope"))
	assert.Zero(t, env.events.count(domain.EventSessionDestroyed))
}

func TestRegistry_DestroyReleasesEverything(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	env := newTestEnv(t)
	s, tracks := env.sessionWith(t, "A", "B")

	require.NoError(t, s.Join(context.Background(), domain.ChannelDescriptor{ChannelID: "c1"}))
	require.NoError(t, s.StartNext(context.Background(), false, true))
	assert.Eventually(t, tracks[1].Preloaded, waitFor, pollEvery)

	p := env.player(t)

	require.NoError(t, env.registry.Destroy(context.Background(), testGroup))

	assert.True(t, s.Destroyed())
	assert.False(t, tracks[1].Preloaded(), "queued resources are released")
	assert.True(t, p.Closed())
	assert.True(t, env.transport.Connections()[0].Disconnected())
	assert.Equal(t, 1, env.events.count(domain.EventSessionDestroyed))
	assert.Zero(t, env.registry.Len())

	// Second destroy is a no-op
	require.NoError(t, env.registry.Destroy(context.Background(), testGroup))
	assert.Equal(t, 1, env.events.count(domain.EventSessionDestroyed))
}

func TestRegistry_ConcurrentDestroy(t *testing.T) {
	env := newTestEnv(t)
	env.registry.GetOrCreate(testGroup)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.registry.Destroy(context.Background(), testGroup))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.events.count(domain.EventSessionDestroyed))
	assert.Zero(t, env.registry.Len())
}

func TestRegistry_GetOrCreateAfterDestroy(t *testing.T) {
	env := newTestEnv(t)

	first := env.registry.GetOrCreate(testGroup)
	require.NoError(t, env.registry.Destroy(context.Background(), testGroup))

	second := env.registry.GetOrCreate(testGroup)
	assert.NotSame(t, first, second)
	assert.False(t, second.Destroyed())
	assert.Equal(t, 2, env.events.count(domain.EventSessionCreated))
}

func TestRegistry_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.registry.GetOrCreate(fmt.Sprintf("guild-%d", i))
	}

	require.NoError(t, env.registry.Shutdown(context.Background()))
	assert.Zero(t, env.registry.Len())
	assert.Empty(t, env.registry.GroupIDs())
	assert.Equal(t, 3, env.events.count(domain.EventSessionDestroyed))
}

func TestRegistry_ShutdownWaitsForCompletionHandlers(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	env := newTestEnv(t)
	s, _ := env.sessionWith(t, "A", "B")
	require.NoError(t, s.StartNext(context.Background(), false, false))

	// The completion handler resolves B under the session lifetime
	env.resolver.SetStreamDelay(time.Second)
	require.True(t, env.player(t).Finish())
	require.NoError(t, env.registry.Shutdown(context.Background()))

	assert.True(t, s.Destroyed())
	assert.Equal(t, []string{"A"}, env.events.startedTitles())
}
