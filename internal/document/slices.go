package document

import "composer/internal/domain"

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// insertAt returns a new slice with b inserted at i (0 <= i <= len).
func insertAt(blocks []domain.Block, i int, b domain.Block) []domain.Block {
	out := make([]domain.Block, 0, len(blocks)+1)
	out = append(out, blocks[:i]...)
	out = append(out, b)
	out = append(out, blocks[i:]...)
	return out
}

// removeAt returns a new slice without the element at i.
func removeAt(blocks []domain.Block, i int) []domain.Block {
	out := make([]domain.Block, 0, len(blocks)-1)
	out = append(out, blocks[:i]...)
	out = append(out, blocks[i+1:]...)
	return out
}

// replaceAt returns a new slice with the element at i replaced.
func replaceAt(blocks []domain.Block, i int, b domain.Block) []domain.Block {
	out := make([]domain.Block, len(blocks))
	copy(out, blocks)
	out[i] = b
	return out
}
