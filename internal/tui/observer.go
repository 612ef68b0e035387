package tui

import (
	"context"
	"sync"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Sample is one accepted point of a trajectory.
type Sample struct {
	T float64
	S dynamo.State
}

// ChannelObserver forwards copies of accepted samples to a channel so a
// consumer on another goroutine can render them. Sends block until the
// consumer reads or ctx is done.
type ChannelObserver struct {
	ctx  context.Context
	ch   chan Sample
	once sync.Once
}

func NewChannelObserver(ctx context.Context, buffer int) *ChannelObserver {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelObserver{ctx: ctx, ch: make(chan Sample, buffer)}
}

func (o *ChannelObserver) OnStep(t float64, s dynamo.State) {
	select {
	case o.ch <- Sample{T: t, S: s.Clone()}:
	case <-o.ctx.Done():
	}
}

func (o *ChannelObserver) Samples() <-chan Sample { return o.ch }

// Close ends the sample stream. OnStep must not be called afterwards.
func (o *ChannelObserver) Close() {
	o.once.Do(func() { close(o.ch) })
}
