package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/watcher"
)

const window = 100 * time.Millisecond

// batches records every delivered batch.
type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) add(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.got
}

// settle advances the fake clock by d and waits for the timers it fired.
func settle(d time.Duration) {
	time.Sleep(d)
	synctest.Wait()
}

func TestDebouncer_CoalescesSortedAndUnique(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(window, b.add)

		d.Add("/ws/lib/b.c")
		d.Add("/ws/lib/a.c")
		d.Add("/ws/lib/b.c")
		settle(window + time.Millisecond)

		assert.Equal(t, [][]string{{"/ws/lib/a.c", "/ws/lib/b.c"}}, b.all())
	})
}

func TestDebouncer_AddRestartsWindow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(window, b.add)

		d.Add("/ws/lib/a.c")
		settle(80 * time.Millisecond)
		d.Add("/ws/lib/kiln.yaml")
		settle(80 * time.Millisecond)
		assert.Empty(t, b.all(), "window restarted by the second path")

		settle(30 * time.Millisecond)
		assert.Equal(t, [][]string{{"/ws/lib/a.c", "/ws/lib/kiln.yaml"}}, b.all())
	})
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(window, b.add)

		d.Add("/ws/lib/a.c")
		settle(2 * window)
		d.Add("/ws/lib/c.c")
		settle(2 * window)

		assert.Equal(t, [][]string{{"/ws/lib/a.c"}, {"/ws/lib/c.c"}}, b.all())
	})
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(window, b.add)

		d.Flush()
		assert.Empty(t, b.all(), "nothing pending")

		d.Add("/ws/lib/a.c")
		d.Flush()
		assert.Equal(t, [][]string{{"/ws/lib/a.c"}}, b.all(), "delivered before returning")

		settle(2 * window)
		assert.Len(t, b.all(), 1, "the stopped timer delivers nothing")

		d.Add("/ws/lib/b.c")
		settle(2 * window)
		d.Flush()
		assert.Equal(t, [][]string{{"/ws/lib/a.c"}, {"/ws/lib/b.c"}}, b.all(), "flush after the timer fired")
	})
}

func TestDebouncer_Stop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(window, b.add)

		d.Add("/ws/lib/a.c")
		d.Stop()
		d.Add("/ws/lib/b.c")
		settle(2 * window)
		d.Flush()

		assert.Empty(t, b.all())
	})
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := watcher.NewDebouncer(0, nil)
		d.Add("/ws/lib/a.c")
		settle(time.Millisecond)
		assert.NotPanics(t, d.Flush)
	})
}

func TestDebouncer_BatchesDoNotOverlap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var mu sync.Mutex
		var active, maxActive, calls int

		d := watcher.NewDebouncer(10*time.Millisecond, func([]string) {
			mu.Lock()
			active++
			calls++
			maxActive = max(maxActive, active)
			mu.Unlock()

			time.Sleep(100 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		})

		d.Add("/ws/lib/a.c")
		time.Sleep(20 * time.Millisecond)
		d.Add("/ws/lib/b.c")
		settle(300 * time.Millisecond)

		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, maxActive)
	})
}
