package semantic

import (
	"sort"

	"github.com/wudi/legacydoc/observability"
)

// Link is one node of a text-box chain.
type Link struct {
	Prev, Next int
}

// LinkReport counts what ResolveLinks removed.
type LinkReport struct {
	Pruned int
	Cut    int
}

// ResolveLinks turns a raw next/prev map into a forest of simple paths.
// An edge a->b survives only when a.Next == b and b.Prev == a. Cycles left after
// pruning are broken at the edge that re-enters a visited node, walking each
// cycle from its lowest id. The result is stable: resolving it again changes nothing.
func ResolveLinks(in map[int]Link) (map[int]Link, LinkReport) {
	var rep LinkReport
	out := make(map[int]Link, len(in))
	for id := range in {
		out[id] = Link{Prev: NoLink, Next: NoLink}
	}
	for id, l := range in {
		if l.Next != NoLink {
			if n, ok := in[l.Next]; ok && n.Prev == id {
				a, b := out[id], out[l.Next]
				a.Next = l.Next
				out[id] = a
				b.Prev = id
				out[l.Next] = b
			} else {
				rep.Pruned++
			}
		}
		if l.Prev != NoLink {
			if p, ok := in[l.Prev]; !ok || p.Next != id {
				rep.Pruned++
			}
		}
	}

	ids := make([]int, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	visited := make(map[int]bool, len(out))
	for _, id := range ids {
		if out[id].Prev != NoLink {
			continue
		}
		for cur := id; cur != NoLink && !visited[cur]; cur = out[cur].Next {
			visited[cur] = true
		}
	}
	// Anything left is on a cycle.
	for _, id := range ids {
		if visited[id] {
			continue
		}
		cur := id
		for {
			visited[cur] = true
			next := out[cur].Next
			if next == NoLink {
				break
			}
			if visited[next] {
				a, b := out[cur], out[next]
				a.Next = NoLink
				out[cur] = a
				b.Prev = NoLink
				out[next] = b
				rep.Cut++
				break
			}
			cur = next
		}
	}
	return out, rep
}

// ResolveFrameLinks validates the frame chains in place.
func (d *Document) ResolveFrameLinks(log observability.Logger) LinkReport {
	in := make(map[int]Link, len(d.Frames))
	for id, f := range d.Frames {
		in[id] = Link{Prev: f.Prev, Next: f.Next}
	}
	out, rep := ResolveLinks(in)
	for id, l := range out {
		f := d.Frames[id]
		f.Prev, f.Next = l.Prev, l.Next
	}
	if log != nil && (rep.Pruned > 0 || rep.Cut > 0) {
		log.Warn("frame chain repaired",
			observability.Int("pruned", rep.Pruned),
			observability.Int("cut", rep.Cut))
	}
	return rep
}

// Chain returns the frames of the chain starting at head, head included.
func (d *Document) Chain(head int) []*Frame {
	var out []*Frame
	seen := make(map[int]bool)
	for id := head; id != NoLink && !seen[id]; {
		f, ok := d.Frames[id]
		if !ok {
			break
		}
		seen[id] = true
		out = append(out, f)
		id = f.Next
	}
	return out
}
