package graph

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/emailflow/pkg/model"
)

var strategies = []Strategy{Eager, Lazy}

func mustBuild(t *testing.T, tasks ...model.Task) *Graph {
	t.Helper()
	g, err := Build(tasks)
	require.NoError(t, err)
	return g
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, Eager, s)

	s, err = ParseStrategy("lazy")
	require.NoError(t, err)
	require.Equal(t, Lazy, s)

	_, err = ParseStrategy("greedy")
	require.Error(t, err)
}

func TestTracker_ChainUnlocksInOrder(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g := mustBuild(t,
				task("A", 5*time.Second),
				task("B", 5*time.Second, "A"),
				task("C", 5*time.Second, "A", "B"),
			)
			tr := NewTracker(g, strategy)

			require.Equal(t, []string{"A"}, tr.Drain(0))
			require.Empty(t, tr.Drain(0), "A must be handed out only once")

			require.NoError(t, tr.OnCompleted("A"))
			require.Equal(t, 1, tr.Remaining("C"))
			require.Equal(t, []string{"B"}, tr.Drain(0))

			require.NoError(t, tr.OnCompleted("B"))
			require.Equal(t, 0, tr.Remaining("C"))
			require.Equal(t, []string{"C"}, tr.Drain(0))

			require.NoError(t, tr.OnCompleted("C"))
			require.True(t, tr.Done())
			require.Equal(t, []string{"A", "B", "C"}, tr.Completed().IDs())
			require.Equal(t, 0, tr.Pending())
		})
	}
}

func TestTracker_DrainRespectsLimitAndDeadline(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g := mustBuild(t,
				task("late", 30*time.Second),
				task("soon", 1*time.Second),
				task("mid-b", 10*time.Second),
				task("mid-a", 10*time.Second),
			)
			tr := NewTracker(g, strategy)

			require.Equal(t, []string{"soon", "mid-a"}, tr.Drain(2))
			require.Equal(t, 2, tr.Pending())
			require.Equal(t, []string{"mid-b", "late"}, tr.Drain(5))
			require.Empty(t, tr.Drain(5))
		})
	}
}

func TestTracker_OnCompletedRejectsRepeatAndUnknown(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g := mustBuild(t,
				task("a", time.Second),
				task("b", time.Second),
				task("c", time.Second, "a", "b"),
			)
			tr := NewTracker(g, strategy)
			tr.Drain(0)

			require.NoError(t, tr.OnCompleted("a"))
			require.Error(t, tr.OnCompleted("a"))
			require.Equal(t, 1, tr.Remaining("c"), "repeat completion must not decrement again")
			require.Empty(t, tr.Drain(0))

			require.Error(t, tr.OnCompleted("nope"))
		})
	}
}

func TestTracker_CompletedTaskNeverDrained(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g := mustBuild(t, task("a", time.Second), task("b", time.Second))
			tr := NewTracker(g, strategy)

			// A task finished through another path leaves a stale entry behind.
			require.NoError(t, tr.OnCompleted("a"))
			require.Equal(t, []string{"b"}, tr.Drain(0))
		})
	}
}

func TestTracker_ReadySignal(t *testing.T) {
	g := mustBuild(t, task("a", time.Second), task("b", time.Second, "a"))
	tr := NewTracker(g, Eager)

	select {
	case <-tr.Ready():
	default:
		t.Fatal("roots should be signalled on construction")
	}
	tr.Drain(0)

	select {
	case <-tr.Ready():
		t.Fatal("no new task is ready yet")
	default:
	}

	require.NoError(t, tr.OnCompleted("a"))
	select {
	case <-tr.Ready():
	case <-time.After(time.Second):
		t.Fatal("completion of a should signal b")
	}
}

// Many siblings completing concurrently must unlock their shared dependent
// exactly once.
func TestTracker_ConcurrentSiblingCompletion(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			const n = 64
			tasks := make([]model.Task, 0, n+1)
			deps := make([]string, 0, n)
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("leaf-%02d", i)
				tasks = append(tasks, task(id, time.Second))
				deps = append(deps, id)
			}
			tasks = append(tasks, task("join", time.Second, deps...))
			tr := NewTracker(mustBuild(t, tasks...), strategy)
			require.Len(t, tr.Drain(0), n)

			var wg sync.WaitGroup
			var mu sync.Mutex
			var seen []string
			for _, id := range deps {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					if err := tr.OnCompleted(id); err != nil {
						t.Error(err)
					}
					ready := tr.Drain(0)
					mu.Lock()
					seen = append(seen, ready...)
					mu.Unlock()
				}(id)
			}
			wg.Wait()
			seen = append(seen, tr.Drain(0)...)

			require.Equal(t, []string{"join"}, seen)
			require.Equal(t, 0, tr.Remaining("join"))
		})
	}
}
