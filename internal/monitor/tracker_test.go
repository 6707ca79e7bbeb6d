package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockwatch/internal/config"
	"stockwatch/internal/probe"
)

func TestTrackerNotifiesOnTransitionToInStock(t *testing.T) {
	tr := NewTracker()
	tr.Sync([]config.Product{{ID: "p1"}})
	now := time.Now()

	out := tr.Observe("p1", probe.Reading{InStock: true}, 6*time.Hour, now)
	assert.True(t, out.Transitioned)
	assert.True(t, out.Notify)

	// Stays in stock: nothing new.
	out = tr.Observe("p1", probe.Reading{InStock: true}, 6*time.Hour, now.Add(time.Minute))
	assert.False(t, out.Transitioned)
	assert.False(t, out.Notify)
}

func TestTrackerCooldownGatesRepeat(t *testing.T) {
	tr := NewTracker()
	tr.Sync([]config.Product{{ID: "p1"}})
	now := time.Now()

	tr.Observe("p1", probe.Reading{InStock: true}, 6*time.Hour, now)
	tr.MarkNotified("p1", now)

	// Flaps out and back within the cooldown window.
	tr.Observe("p1", probe.Reading{InStock: false}, 6*time.Hour, now.Add(time.Hour))
	out := tr.Observe("p1", probe.Reading{InStock: true}, 6*time.Hour, now.Add(2*time.Hour))
	assert.True(t, out.Transitioned)
	assert.False(t, out.Notify, "repeat alert inside cooldown")

	// Same flap once the cooldown has passed.
	tr.Observe("p1", probe.Reading{InStock: false}, 6*time.Hour, now.Add(3*time.Hour))
	out = tr.Observe("p1", probe.Reading{InStock: true}, 6*time.Hour, now.Add(7*time.Hour))
	assert.True(t, out.Notify)
}

func TestTrackerOutOfStockNeverNotifies(t *testing.T) {
	tr := NewTracker()
	tr.Sync([]config.Product{{ID: "p1", InStock: true}})

	out := tr.Observe("p1", probe.Reading{InStock: false}, 6*time.Hour, time.Now())
	assert.True(t, out.Transitioned)
	assert.False(t, out.Notify)
}

func TestTrackerSyncSeedsAndPrunes(t *testing.T) {
	tr := NewTracker()
	stamp := time.Now().Add(-time.Hour)
	tr.Sync([]config.Product{{ID: "p1", InStock: true, LastNotified: stamp}})

	inStock, lastNotified, ok := tr.State("p1")
	assert.True(t, ok)
	assert.True(t, inStock)
	assert.Equal(t, stamp, lastNotified)

	// Re-sync keeps live state, prunes removed products.
	tr.Observe("p1", probe.Reading{InStock: false}, 6*time.Hour, time.Now())
	tr.Sync([]config.Product{{ID: "p1", InStock: true, LastNotified: time.Time{}}, {ID: "p2"}})

	inStock, lastNotified, ok = tr.State("p1")
	assert.True(t, ok)
	assert.False(t, inStock, "sync must not clobber live state")
	assert.Equal(t, stamp, lastNotified)

	tr.Sync([]config.Product{{ID: "p2"}})
	_, _, ok = tr.State("p1")
	assert.False(t, ok)
}
