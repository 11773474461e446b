// Package zxid implements the 64-bit transaction identifier assigned to every
// committed mutation. The high 32 bits carry the leadership epoch and the low
// 32 bits a counter the leader increments per proposal, so ids stay unique
// and totally ordered across leadership changes: a new leader starts at
// (epoch+1, 0).
package zxid

import "sync"

type ZXID int64

// New packs an epoch and counter into a single id.
func New(epoch int32, counter int32) ZXID {
	return ZXID(int64(epoch)<<32 | int64(uint32(counter)))
}

// Epoch extracts the leadership epoch from the high 32 bits.
func (z ZXID) Epoch() int32 {
	return int32(z >> 32)
}

// Counter extracts the per-epoch counter from the low 32 bits.
func (z ZXID) Counter() int32 {
	return int32(z & 0xFFFFFFFF)
}

// Generator hands out strictly increasing ids within one epoch.
type Generator struct {
	mu      sync.Mutex
	epoch   int32
	counter int32
}

// NewGenerator starts a generator for the given epoch, continuing after the
// highest counter already used (0 for a fresh epoch).
func NewGenerator(epoch int32, lastCounter int32) *Generator {
	return &Generator{epoch: epoch, counter: lastCounter}
}

// Next returns the next unused id.
func (g *Generator) Next() ZXID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return New(g.epoch, g.counter)
}

// Last returns the most recently issued id, or the epoch base if none was
// issued yet.
func (g *Generator) Last() ZXID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return New(g.epoch, g.counter)
}
