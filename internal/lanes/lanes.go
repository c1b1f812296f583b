// Package lanes assigns side-by-side display lanes to time intervals that
// share a resource column.
//
// Every interval gets a zero-based Lane so that no two intervals in the same
// lane overlap, and a Lanes count shared by its whole overlap cluster (the
// maximal set of intervals connected by a chain of pairwise overlaps; see
// Clusters for how inverted intervals are grouped). A renderer places an
// event at left = lane/lanes and width = 1/lanes.
//
// Intervals are half-open [Start, End): an interval ending exactly when the
// next starts does not overlap it and frees its lane.
package lanes

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"staffcal/internal/minutes"
)

// Interval is one event in a column, in minutes since local midnight.
// End <= Start is allowed; such intervals are laid out like any other.
type Interval struct {
	ID    string `json:"id" yaml:"id"`
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
}

// Assignment is the layout result for one interval.
type Assignment struct {
	ID    string `json:"id"`
	Lane  int    `json:"lane"`
	Lanes int    `json:"lanes"`
}

// RawInterval carries start/end in any representation minutes.Parser
// understands (ISO date-time, "1:30pm", "13:30", numeric minutes).
type RawInterval struct {
	ID    any `json:"id" yaml:"id"`
	Start any `json:"start" yaml:"start"`
	End   any `json:"end" yaml:"end"`
}

// Overlaps reports whether a and b share any instant.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Compute lays out intervals and returns one Assignment per input, in input
// order. It never mutates its argument and keeps no state between calls.
//
// Intervals are swept in (Start, End) order, ties kept in input order. Busy
// lanes are released once their occupant ends at or before the current
// start, and the lowest free lane is taken. A cluster stays open while the
// next start is before the latest end seen in it; when it closes, all its
// members are stamped with max(lane)+1.
func Compute(intervals []Interval) []Assignment {
	n := len(intervals)
	out := make([]Assignment, n)
	if n == 0 {
		return out
	}

	order := sortedOrder(intervals)

	var (
		busy busyHeap
		free intHeap
		used int

		clusterStart = 0
		clusterEnd   = 0
		maxLane      = -1
	)

	flush := func(upto int) {
		for _, idx := range order[clusterStart:upto] {
			out[idx].Lanes = maxLane + 1
		}
		clusterStart = upto
		maxLane = -1
	}

	for pos, idx := range order {
		iv := intervals[idx]

		if pos > clusterStart && iv.Start >= clusterEnd {
			flush(pos)
		}
		if pos == clusterStart {
			clusterEnd = iv.End
		} else if iv.End > clusterEnd {
			clusterEnd = iv.End
		}

		for busy.Len() > 0 && busy[0].end <= iv.Start {
			heap.Push(&free, heap.Pop(&busy).(occupant).lane)
		}

		lane := used
		if free.Len() > 0 {
			lane = heap.Pop(&free).(int)
		} else {
			used++
		}
		heap.Push(&busy, occupant{end: iv.End, lane: lane})

		out[idx] = Assignment{ID: iv.ID, Lane: lane}
		if lane > maxLane {
			maxLane = lane
		}
	}
	flush(n)

	return out
}

// ComputeRaw converts every raw interval with p and lays them out. The first
// unparseable start or end aborts with an error naming the interval.
func ComputeRaw(items []RawInterval, p minutes.Parser) ([]Assignment, error) {
	ivs := make([]Interval, len(items))
	for i, it := range items {
		id := idString(it.ID)
		start, err := p.Extract(it.Start)
		if err != nil {
			return nil, fmt.Errorf("lanes: interval %q start: %w", id, err)
		}
		end, err := p.Extract(it.End)
		if err != nil {
			return nil, fmt.Errorf("lanes: interval %q end: %w", id, err)
		}
		ivs[i] = Interval{ID: id, Start: start, End: end}
	}
	return Compute(ivs), nil
}

// idString renders a decoded id without losing digits: record ids are
// often 19-digit integers that do not survive a float64 or %v round trip.
// Decode JSON with UseNumber so they arrive as json.Number.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Clusters splits intervals into the groups Compute stamps with one lane
// count. Each cluster lists input indices in sweep order; clusters are
// ordered by their first start.
//
// A cluster stays open while the next start is before the largest end seen
// so far. For well-formed intervals that is exactly the chain-of-overlaps
// partition. An inverted interval (End < Start) overlaps nothing, yet it
// still joins the open cluster when its start falls before that running
// end: [4,6] and [5,3] share a cluster.
func Clusters(intervals []Interval) [][]int {
	if len(intervals) == 0 {
		return nil
	}
	order := sortedOrder(intervals)

	var out [][]int
	cur := []int{order[0]}
	end := intervals[order[0]].End
	for _, idx := range order[1:] {
		iv := intervals[idx]
		if iv.Start >= end {
			out = append(out, cur)
			cur = []int{idx}
			end = iv.End
			continue
		}
		cur = append(cur, idx)
		if iv.End > end {
			end = iv.End
		}
	}
	return append(out, cur)
}

// ByID indexes assignments for renderer lookups. With duplicate ids the
// last assignment wins.
func ByID(as []Assignment) map[string]Assignment {
	m := make(map[string]Assignment, len(as))
	for _, a := range as {
		m[a.ID] = a
	}
	return m
}

func sortedOrder(intervals []Interval) []int {
	order := make([]int, len(intervals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := intervals[order[a]], intervals[order[b]]
		if x.Start != y.Start {
			return x.Start < y.Start
		}
		return x.End < y.End
	})
	return order
}

type occupant struct {
	end  int
	lane int
}

// busyHeap orders occupied lanes by end, then lane index.
type busyHeap []occupant

func (h busyHeap) Len() int { return len(h) }
func (h busyHeap) Less(i, j int) bool {
	if h[i].end != h[j].end {
		return h[i].end < h[j].end
	}
	return h[i].lane < h[j].lane
}
func (h busyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *busyHeap) Push(x any)   { *h = append(*h, x.(occupant)) }
func (h *busyHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
