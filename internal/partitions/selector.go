package partitions

import (
	"fmt"
	"hash/fnv"

	"golang.org/x/exp/slices"
)

// ServerSelector orders the alive partition ids for a given file name. The
// default is rendezvous (HRW) hashing: deterministic per (name, alive-set),
// and minimally disruptive when the alive set changes by one id.
type ServerSelector interface {
	SelectFrom(name string, ids []ID) []ID
}

// RendezvousSelector implements highest-random-weight hashing: each id gets
// a score mixing the id and the file name, ids sort descending by score
// with the id's string form as a deterministic tie-break.
type RendezvousSelector struct{}

func (RendezvousSelector) SelectFrom(name string, ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)

	scores := make(map[ID]uint64, len(out))
	labels := make(map[ID]string, len(out))
	for _, id := range out {
		label := fmt.Sprint(id)
		labels[id] = label
		scores[id] = rendezvousScore(label, name)
	}

	slices.SortFunc(out, func(a, b ID) int {
		sa, sb := scores[a], scores[b]
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			la, lb := labels[a], labels[b]
			switch {
			case la < lb:
				return -1
			case la > lb:
				return 1
			default:
				return 0
			}
		}
	})
	return out
}

// rendezvousScore mixes id and name with FNV-1a, the same hashing idiom
// used elsewhere in the corpus for deterministic key-to-bucket assignment.
func rendezvousScore(id, name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}
