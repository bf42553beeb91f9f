// Package ranking orders probe results by latency.
package ranking

import (
	"cmp"
	"net/netip"
	"slices"
	"time"

	"go.ntppool.org/cdnopt/probe"
)

type Entry struct {
	Addr    netip.Addr
	Latency time.Duration
}

// Millis is the latency in whole milliseconds, truncated.
func (e Entry) Millis() int64 {
	return e.Latency.Milliseconds()
}

// List is a ranked list of reachable addresses, fastest first.
type List struct {
	entries []Entry
}

// Rank drops the failed probes and stable sorts the rest by ascending
// latency; equal latencies keep their input order.
func Rank(results []probe.Result) List {
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if !r.OK {
			continue
		}
		entries = append(entries, Entry{Addr: r.Addr, Latency: r.Latency})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Latency, b.Latency)
	})

	return List{entries: entries}
}

func (l List) Len() int {
	return len(l.entries)
}

// Top returns the k fastest entries, or all of them if there are fewer.
func (l List) Top(k int) []Entry {
	if k <= 0 {
		return []Entry{}
	}
	k = min(k, len(l.entries))
	return slices.Clone(l.entries[:k])
}

// Best returns the fastest entry; false if nothing was reachable.
func (l List) Best() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[0], true
}

// Entries returns the whole ranked list.
func (l List) Entries() []Entry {
	return slices.Clone(l.entries)
}
