package engine

import (
	"sync"

	"mt5-ensemble-bot/internal/types"
)

// SignalBuffer is the bounded FIFO between an upstream signal producer
// and the trading loop. When full, the oldest entry is dropped.
type SignalBuffer struct {
	mu  sync.Mutex
	buf []types.ExternalSignal
	cap int
}

func NewSignalBuffer(capacity int) *SignalBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &SignalBuffer{cap: capacity}
}

func (b *SignalBuffer) Push(sig types.ExternalSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) >= b.cap {
		b.buf = b.buf[1:]
	}
	b.buf = append(b.buf, sig)
}

// Take removes and returns the newest signal for the symbol, or nil.
// Older signals for the same symbol are discarded with it.
func (b *SignalBuffer) Take(symbol string) *types.ExternalSignal {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found *types.ExternalSignal
	kept := b.buf[:0]
	for i := range b.buf {
		if b.buf[i].Symbol == symbol {
			sig := b.buf[i]
			found = &sig
			continue
		}
		kept = append(kept, b.buf[i])
	}
	b.buf = kept
	return found
}

func (b *SignalBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
