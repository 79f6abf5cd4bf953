package scanner

import (
	"github.com/cornelk/hashmap"
	"github.com/srg/bletrack/internal/device"
)

// DedupCache remembers which addresses were already reported in the current
// scan session.
type DedupCache struct {
	seen *hashmap.Map[uint64, struct{}]
}

func NewDedupCache() *DedupCache {
	return &DedupCache{seen: hashmap.New[uint64, struct{}]()}
}

// FirstSighting records addr and reports whether it was new to the session.
func (d *DedupCache) FirstSighting(addr device.Address) bool {
	_, loaded := d.seen.GetOrInsert(addr.Uint64(), struct{}{})
	return !loaded
}

// Reset forgets every address. Called when a new session starts.
func (d *DedupCache) Reset() {
	d.seen = hashmap.New[uint64, struct{}]()
}

func (d *DedupCache) Len() int {
	return d.seen.Len()
}
