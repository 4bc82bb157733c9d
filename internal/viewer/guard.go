package viewer

import "github.com/lox/hazardmap/internal/metrics"

// ticket identifies one issued request.
type ticket struct {
	key string
	seq uint64
}

// guard keeps only the most recently issued request current. Responses that
// arrive for an older ticket are dropped. Callers hold the session lock.
type guard struct {
	kind string
	seq  uint64
	key  string
}

func newGuard(kind string) guard {
	return guard{kind: kind}
}

func (g *guard) issue(key string) ticket {
	g.seq++
	g.key = key
	return ticket{key: key, seq: g.seq}
}

// accept reports whether t is still the latest request, counting stale drops.
func (g *guard) accept(t ticket) bool {
	if t.seq == g.seq && t.key == g.key {
		return true
	}
	metrics.StaleResultsDiscarded.WithLabelValues(g.kind).Inc()
	return false
}

// invalidate makes every outstanding ticket stale.
func (g *guard) invalidate() {
	g.seq++
	g.key = ""
}
