package expreplay

import "math"

// sumTree is a binary tree in which each leaf stores the priority of a
// transition and each internal node stores the sum of its children.
// The number of leaves is rounded up to a power of two so that leaves,
// stored in nodes[capacity-1:], are ordered by index.
type sumTree struct {
	capacity int
	nodes    []float64
}

func newSumTree(size int) *sumTree {
	capacity := 1
	for capacity < size {
		capacity *= 2
	}
	return &sumTree{
		capacity: capacity,
		nodes:    make([]float64, 2*capacity-1),
	}
}

// set sets the priority of the leaf at index
func (s *sumTree) set(index int, priority float64) {
	node := index + s.capacity - 1
	change := priority - s.nodes[node]
	s.nodes[node] = priority

	for node > 0 {
		node = (node - 1) / 2
		s.nodes[node] += change
	}
}

// get returns the priority of the leaf at index
func (s *sumTree) get(index int) float64 {
	return s.nodes[index+s.capacity-1]
}

// total returns the sum of all priorities
func (s *sumTree) total() float64 {
	return s.nodes[0]
}

// find returns the index of the leaf at which the cumulative sum of
// priorities first exceeds mass. Only the first n leaves are
// considered.
func (s *sumTree) find(mass float64, n int) int {
	node := 0
	for node < s.capacity-1 {
		left := 2*node + 1
		if mass < s.nodes[left] || s.nodes[left+1] <= 0 {
			node = left
		} else {
			mass -= s.nodes[left]
			node = left + 1
		}
	}

	index := node - (s.capacity - 1)
	return int(math.Min(float64(index), float64(n-1)))
}
