// internal/inventory/dedup.go
package inventory

// Deduplicator tracks EPCs already emitted within one session. Each
// session owns its own instance; nothing is shared across sessions.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator creates an empty per-session deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Observe records the EPC and reports whether it was new to the session.
func (d *Deduplicator) Observe(epc string) bool {
	if _, ok := d.seen[epc]; ok {
		return false
	}
	d.seen[epc] = struct{}{}
	return true
}

// Seen reports whether the EPC has been observed in this session.
func (d *Deduplicator) Seen(epc string) bool {
	_, ok := d.seen[epc]
	return ok
}

// Len returns the number of distinct EPCs observed.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
