package wal

import "sync/atomic"

type LSNGenerator struct {
	lsn atomic.Uint64
}

func NewLSNGenerator(lastLSN uint64) *LSNGenerator {
	var lsn atomic.Uint64
	if lastLSN != 0 {
		lsn.Store(lastLSN)
	}
	return &LSNGenerator{lsn: lsn}
}

func (g *LSNGenerator) Next() uint64 {
	return g.lsn.Add(1)
}

// Current returns the most recently issued LSN without allocating a new one.
func (g *LSNGenerator) Current() uint64 {
	return g.lsn.Load()
}

// ResetToLSN rewinds the generator to lsn, used after recovery or after a
// full sync replaces the WAL's data with a snapshot taken at a known LSN.
func (g *LSNGenerator) ResetToLSN(lsn uint64) {
	g.lsn.Store(lsn)
}
