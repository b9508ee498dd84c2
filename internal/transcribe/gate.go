package transcribe

import (
	"context"

	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
)

// gate bounds the number of engine calls in flight. Waiters are admitted in
// the order the runtime queues their channel sends.
type gate struct {
	slots chan struct{}
}

func newGate(n int) *gate {
	if n < 1 {
		n = 1
	}
	return &gate{slots: make(chan struct{}, n)}
}

func (g *gate) acquire(ctx context.Context) error {
	metrics.GateWaiting.Inc()
	defer metrics.GateWaiting.Dec()
	select {
	case g.slots <- struct{}{}:
		metrics.GateInflight.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	<-g.slots
	metrics.GateInflight.Dec()
}

func (g *gate) capacity() int { return cap(g.slots) }
