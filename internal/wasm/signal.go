package wasm

import (
	"sync"
	"time"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// Signal is one message a guest sent through env.sig.
type Signal struct {
	InstanceID string
	Text       string
	Raw        []byte
	Ptr        abi.FatPtr
	Valid      bool
	At         time.Time
}

// inbox collects the signals of one instance.
type inbox struct {
	mu      sync.Mutex
	signals []Signal
}

func (b *inbox) push(s Signal) {
	b.mu.Lock()
	b.signals = append(b.signals, s)
	b.mu.Unlock()
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}

// since returns a copy of the signals received after the first n.
func (b *inbox) since(n int) []Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= len(b.signals) {
		return nil
	}
	out := make([]Signal, len(b.signals)-n)
	copy(out, b.signals[n:])
	return out
}
