// pkg/engine/race_condition_test.go
package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// TestEngineRaceCondition runs the tick loop against concurrent submitters
// and readers. Run with -race to catch unsynchronized access.
func TestEngineRaceCondition(t *testing.T) {
	e, err := NewEngine(physics.DefaultLimits(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !e.Spawn(fmt.Sprintf("Fighter-%d", i), 0, 100, 1000, 1000) {
			t.Fatalf("failed to spawn fighter %d", i)
		}
	}

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				e.Tick()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	results := make(chan (<-chan bool), 200)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			results <- e.Submit(Command{Kind: SetHeading, FighterID: fmt.Sprintf("Fighter-%d", i%5), Heading: (i * 37) % 360})
			results <- e.Submit(Command{Kind: Spawn, FighterID: fmt.Sprintf("Late-%d", i)})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			snap := e.Snapshot()
			for j := 1; j < len(snap.Fighters); j++ {
				if snap.Fighters[j-1].ID >= snap.Fighters[j].ID {
					t.Errorf("snapshot out of order at tick %d", snap.Tick)
					return
				}
			}
			e.GetFighter("Fighter-0")
		}
	}()

	// wait for every submitted command to be resolved by the tick goroutine
	go func() {
		for i := 0; i < 200; i++ {
			r := <-results
			if !<-r {
				t.Errorf("command %d rejected", i)
			}
		}
		close(done)
	}()

	wg.Wait()

	if got := e.FighterCount(); got != 105 {
		t.Errorf("expected 105 fighters, got %d", got)
	}
}
