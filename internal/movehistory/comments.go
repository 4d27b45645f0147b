package movehistory

import (
	"sort"
	"strings"
)

// Comments maps a 0-based ply index to its annotation.
type Comments map[int]string

// Clone returns an independent copy; nil stays nil-safe for reads.
func (c Comments) Clone() Comments {
	out := make(Comments, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Below returns the entries whose ply is smaller than threshold.
func (c Comments) Below(threshold int) Comments {
	out := make(Comments, len(c))
	for k, v := range c {
		if k >= 0 && k < threshold {
			out[k] = v
		}
	}
	return out
}

// Plies returns the commented plies in ascending order.
func (c Comments) Plies() []int {
	keys := make([]int, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (c Comments) Equal(o Comments) bool {
	if len(c) != len(o) {
		return false
	}
	for k, v := range c {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
