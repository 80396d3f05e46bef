package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/dtune/internal/domain"
	"github.com/tejashwikalptaru/dtune/internal/testutil"
)

func TestAsyncEventBus_PublishDoesNotBlock(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := NewAsyncEventBus()

	release := make(chan struct{})
	delivered := make(chan struct{}, 10)
	bus.Subscribe(domain.EventTrackStarted, func(event domain.Event) {
		<-release
		delivered <- struct{}{}
	})

	start := time.Now()
	for i := 0; i < 5; i++ {
		bus.Publish(startedEvent("g1", "a"))
	}
	assert.Less(t, time.Since(start), time.Second, "publish must not wait on handlers")

	close(release)
	for i := 0; i < 5; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}

	require.NoError(t, bus.Close())
}

func TestAsyncEventBus_PreservesPublishOrder(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := NewAsyncEventBus()

	var mu sync.Mutex
	var got []domain.EventType
	bus.SubscribeAll(func(event domain.Event) {
		mu.Lock()
		got = append(got, event.Type())
		mu.Unlock()
	})

	sequence := []domain.Event{
		domain.NewSessionCreatedEvent("g1"),
		domain.NewJoinedChannelEvent("g1", "c1", false),
		domain.NewTrackAddedEvent("g1", domain.TrackInfo{}, 0, 1),
		startedEvent("g1", "a"),
		domain.NewTrackEndedEvent("g1", domain.TrackInfo{}),
		domain.NewSessionDestroyedEvent("g1"),
	}
	for _, e := range sequence {
		bus.Publish(e)
	}

	// Close drains queued events before returning
	require.NoError(t, bus.Close())

	require.Len(t, got, len(sequence))
	for i, e := range sequence {
		assert.Equal(t, e.Type(), got[i])
	}
}

func TestAsyncEventBus_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := NewAsyncEventBus()

	var count int
	var mu sync.Mutex
	bus.Subscribe(domain.EventTrackSkipped, func(event domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventTrackSkipped, func(event domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(domain.NewTrackSkippedEvent("g1", domain.TrackInfo{}))
	bus.Publish(domain.NewTrackSkippedEvent("g1", domain.TrackInfo{}))

	require.NoError(t, bus.Close())
	assert.Equal(t, 2, count)
}

func TestAsyncEventBus_CloseTwice(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := NewAsyncEventBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Close())

	// Publishing after close is dropped silently
	bus.Publish(startedEvent("g1", "a"))
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestAsyncEventBus_SubscribeAfterClosePanics(t *testing.T) {
	bus := NewAsyncEventBus()
	require.NoError(t, bus.Close())

	assert.Panics(t, func() {
		bus.Subscribe(domain.EventTrackStarted, func(domain.Event) {})
	})
}

func TestAsyncEventBus_GroupFilter(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	bus := NewAsyncEventBus()

	var mu sync.Mutex
	var titles []string
	bus.SubscribeFiltered(domain.EventTrackStarted, GroupFilter("g1"), func(event domain.Event) {
		mu.Lock()
		titles = append(titles, event.(domain.TrackStartedEvent).Track.Title)
		mu.Unlock()
	})

	bus.Publish(startedEvent("g1", "a"))
	bus.Publish(startedEvent("g2", "b"))
	bus.Publish(startedEvent("g1", "c"))

	require.NoError(t, bus.Close())
	assert.Equal(t, []string{"a", "c"}, titles)
}
