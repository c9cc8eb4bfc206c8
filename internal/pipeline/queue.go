package pipeline

import "sync"

// gate lets pause()/resume() stop a stage from picking up new work without
// interrupting whatever a worker is already in the middle of. Pause only
// blocks the next dequeue; it never reaches into a running task. resumed is
// a channel that is open (non-nil, unclosed) while paused and closed while
// running, so waitUntilResumed can select on it alongside the stage's stop
// channel without spinning or leaking goroutines.
type gate struct {
	mu      sync.Mutex
	resumed chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{resumed: ch}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resumed:
		g.resumed = make(chan struct{})
	default:
	}
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resumed:
	default:
		close(g.resumed)
	}
}

func (g *gate) waitUntilResumed(stop <-chan struct{}) {
	g.mu.Lock()
	ch := g.resumed
	g.mu.Unlock()
	select {
	case <-ch:
	case <-stop:
	}
}

// stage is a bounded worker pool reading typed work off a channel. The
// running field counts workers mid-task; Pipeline.Stats reads it alongside
// the channel's length as the queue backlog.
type stage struct {
	name    string
	workers int
	gate    *gate
	running int32
	stop    chan struct{}
	wg      sync.WaitGroup
}

func newStageRuntime(name string, workers int) *stage {
	return &stage{name: name, workers: workers, gate: newGate(), stop: make(chan struct{})}
}

func (s *stage) close() {
	close(s.stop)
	s.wg.Wait()
}

// sendValidate delivers v to ch without blocking the caller in the common
// case (room in the buffer); if the buffer is full it falls back to a
// one-off goroutine that blocks until either the send succeeds or stop
// fires. The caller never waits, even on a saturated queue; an event whose
// send is still pending when stop fires is dropped.
func sendValidate(ch chan validateTask, stop <-chan struct{}, v validateTask) {
	select {
	case ch <- v:
		return
	default:
	}
	go func() {
		select {
		case ch <- v:
		case <-stop:
		}
	}()
}

func sendLight(ch chan lightTask, stop <-chan struct{}, v lightTask) {
	select {
	case ch <- v:
		return
	default:
	}
	go func() {
		select {
		case ch <- v:
		case <-stop:
		}
	}()
}

func sendBackground(ch chan backgroundTask, stop <-chan struct{}, v backgroundTask) {
	select {
	case ch <- v:
		return
	default:
	}
	go func() {
		select {
		case ch <- v:
		case <-stop:
		}
	}()
}
