// Package merkle batches unconsolidated audit events into Merkle trees so a
// single root hash can later witness the integrity of a whole batch.
package merkle

import "github.com/advocatech/lexsync/internal/cryptox"

// BuildRoot reduces the ordered leaf hashes to a root hash and reports the
// tree height (the number of pairing rounds). An odd level duplicates its
// last node before pairing. A single leaf is its own root at height 0.
func BuildRoot(leaves []string) (root string, height int) {
	if len(leaves) == 0 {
		return "", 0
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, cryptox.HashPair(level[i], level[i+1]))
		}
		level = next
		height++
	}
	return level[0], height
}
