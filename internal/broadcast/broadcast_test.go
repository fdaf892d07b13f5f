package broadcast_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specdeck/specdeck/internal/broadcast"
	"github.com/specdeck/specdeck/internal/domain"
)

func events(from, to uint64) []domain.Event {
	evs := make([]domain.Event, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		evs = append(evs, domain.Event{
			Seq:           seq,
			SpecID:        "spec-1",
			Type:          domain.TypeSpecRenamed,
			SchemaVersion: 1,
		})
	}

	return evs
}

func Test_Subscribe_Receives_In_Commit_Order(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	sub := b.Subscribe(16)
	require.NotNil(t, sub)
	defer sub.Close()

	b.Publish(events(1, 3))
	b.Publish(events(4, 5))

	for want := uint64(1); want <= 5; want++ {
		item, ok := sub.Next(context.Background())
		require.True(t, ok)
		require.Equal(t, want, item.Event.Seq)
		require.Zero(t, item.GapFrom)
	}
}

// Contract: a full buffer drops the oldest events and reports the dropped
// range on the next delivered item.
func Test_Slow_Subscriber_Gets_Gap_Marker(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	sub := b.Subscribe(2)
	require.NotNil(t, sub)
	defer sub.Close()

	// Capacity 2: events 1 and 2 buffered, 3 and 4 push out 1 and 2.
	b.Publish(events(1, 4))

	item, ok := sub.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(3), item.Event.Seq)
	require.Equal(t, uint64(1), item.GapFrom)
	require.Equal(t, uint64(2), item.GapTo)

	item, ok = sub.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(4), item.Event.Seq)
	require.Zero(t, item.GapFrom, "gap must be reported once")
}

func Test_Slow_Subscriber_Folds_Consecutive_Gaps(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	sub := b.Subscribe(1)
	require.NotNil(t, sub)
	defer sub.Close()

	b.Publish(events(1, 1))
	b.Publish(events(2, 2))
	b.Publish(events(3, 3))
	b.Publish(events(4, 4))

	item, ok := sub.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(4), item.Event.Seq)
	require.Equal(t, uint64(1), item.GapFrom)
	require.Equal(t, uint64(3), item.GapTo)
}

// Contract: a gap always ends directly before the event that reports it, and
// every published sequence number is either delivered or covered by a gap,
// even when drops happen between deliveries.
func Test_Gap_Abuts_Event_Across_Interleaved_Drains(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	sub := b.Subscribe(2)
	require.NotNil(t, sub)
	defer sub.Close()

	covered := make(map[uint64]bool)

	take := func() {
		t.Helper()

		item, ok := sub.Next(context.Background())
		require.True(t, ok)

		if item.GapFrom != 0 {
			require.Equal(t, item.Event.Seq-1, item.GapTo,
				"gap %d..%d must abut event %d", item.GapFrom, item.GapTo, item.Event.Seq)

			for seq := item.GapFrom; seq <= item.GapTo; seq++ {
				covered[seq] = true
			}
		}

		require.False(t, covered[item.Event.Seq], "seq %d seen twice", item.Event.Seq)
		covered[item.Event.Seq] = true
	}

	b.Publish(events(1, 4)) // drops 1 and 2
	take()                  // 3, gap 1..2
	b.Publish(events(5, 7)) // drops 4 and 5
	take()                  // 6, gap 4..5
	take()                  // 7

	for seq := uint64(1); seq <= 7; seq++ {
		require.True(t, covered[seq], "seq %d neither delivered nor covered by a gap", seq)
	}
}

func Test_Publish_Does_Not_Block_On_Full_Buffer(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	sub := b.Subscribe(1)
	require.NotNil(t, sub)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		b.Publish(events(1, 100))
		close(done)
	}()

	<-done // would deadlock if Publish blocked on the subscriber
}

func Test_Close_Subscription_Does_Not_Affect_Others(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	defer b.Close()

	one := b.Subscribe(4)
	two := b.Subscribe(4)
	require.NotNil(t, one)
	require.NotNil(t, two)

	one.Close()

	b.Publish(events(1, 2))

	item, ok := two.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(1), item.Event.Seq)

	_, ok = one.Next(context.Background())
	require.False(t, ok, "closed subscription yields no items")

	two.Close()
}

func Test_Broadcaster_Close_Drains_Then_Ends_Subscriptions(t *testing.T) {
	t.Parallel()

	b := broadcast.New()

	sub := b.Subscribe(4)
	require.NotNil(t, sub)

	b.Publish(events(1, 2))
	b.Close()

	// Buffered events survive the shutdown; then the feed ends.
	item, ok := sub.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(1), item.Event.Seq)

	item, ok = sub.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(2), item.Event.Seq)

	_, ok = sub.Next(context.Background())
	require.False(t, ok)

	require.Nil(t, b.Subscribe(4), "subscribe after close returns nil")
	b.Publish(events(3, 3)) // must not panic
}
