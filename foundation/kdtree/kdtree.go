// Package kdtree provides a static 2-D k-d tree over (lat, lon) points.
package kdtree

import (
	"sort"
)

// Point is a 2-D coordinate with the caller's index into its own backing slice.
// Index is carried through queries so callers can map results back to their records.
type Point struct {
	Lat   float64
	Lon   float64
	Index int
}

type node struct {
	point       Point
	left, right *node
}

// Tree is an immutable 2-D k-d tree. Safe for concurrent queries after Build.
type Tree struct {
	root *node
	size int
}

// Build constructs a balanced Tree from points. The input slice is not retained.
func Build(points []Point) *Tree {
	copied := make([]Point, len(points))
	copy(copied, points)
	return &Tree{
		root: build(copied, 0),
		size: len(copied),
	}
}

// Size returns the number of points in the tree.
func (t *Tree) Size() int {
	return t.size
}

func build(points []Point, depth int) *node {
	if len(points) == 0 {
		return nil
	}
	axis := depth % 2
	sort.Slice(points, func(i, j int) bool {
		return coordinate(points[i], axis) < coordinate(points[j], axis)
	})
	median := len(points) / 2
	return &node{
		point: points[median],
		left:  build(points[:median], depth+1),
		right: build(points[median+1:], depth+1),
	}
}

func coordinate(p Point, axis int) float64 {
	if axis == 0 {
		return p.Lat
	}
	return p.Lon
}

// Neighbor is a query result, SquaredDistance is in coordinate space (degrees squared).
type Neighbor struct {
	Point           Point
	SquaredDistance float64
}

// NearestK returns up to k nearest points to (lat, lon) ordered nearest first.
// Distances are planar in coordinate space, adequate for points in the same transit area.
func (t *Tree) NearestK(lat, lon float64, k int) []Neighbor {
	if t == nil || t.root == nil || k < 1 {
		return nil
	}
	best := &neighborHeap{limit: k}
	search(t.root, lat, lon, 0, best)
	result := make([]Neighbor, len(best.items))
	copy(result, best.items)
	sort.Slice(result, func(i, j int) bool {
		return result[i].SquaredDistance < result[j].SquaredDistance
	})
	return result
}

// Nearest returns the single nearest point to (lat, lon).
func (t *Tree) Nearest(lat, lon float64) (Point, bool) {
	neighbors := t.NearestK(lat, lon, 1)
	if len(neighbors) == 0 {
		return Point{}, false
	}
	return neighbors[0].Point, true
}

func search(n *node, lat, lon float64, depth int, best *neighborHeap) {
	if n == nil {
		return
	}
	dLat := n.point.Lat - lat
	dLon := n.point.Lon - lon
	best.consider(Neighbor{Point: n.point, SquaredDistance: dLat*dLat + dLon*dLon})

	axis := depth % 2
	var diff float64
	if axis == 0 {
		diff = lat - n.point.Lat
	} else {
		diff = lon - n.point.Lon
	}
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	search(near, lat, lon, depth+1, best)
	if !best.full() || diff*diff < best.worst() {
		search(far, lat, lon, depth+1, best)
	}
}

// neighborHeap keeps the k best candidates seen so far, worst last
type neighborHeap struct {
	items []Neighbor
	limit int
}

func (h *neighborHeap) full() bool {
	return len(h.items) >= h.limit
}

func (h *neighborHeap) worst() float64 {
	return h.items[len(h.items)-1].SquaredDistance
}

func (h *neighborHeap) consider(candidate Neighbor) {
	if h.full() && candidate.SquaredDistance >= h.worst() {
		return
	}
	inserted := false
	for i, existing := range h.items {
		if candidate.SquaredDistance < existing.SquaredDistance {
			h.items = append(h.items[:i], append([]Neighbor{candidate}, h.items[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		h.items = append(h.items, candidate)
	}
	if len(h.items) > h.limit {
		h.items = h.items[:h.limit]
	}
}
