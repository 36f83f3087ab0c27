package rtree

import (
	"math"

	"github.com/hupe1980/spatialidx/geom"
)

// SplitPolicy partitions the boxes of an overflowing node into two groups.
//
// Split returns index lists into boxes. Every index must appear in exactly one
// group and each group must hold at least minEntries indexes; the tree falls
// back to LinearSplit when a policy breaks that contract.
type SplitPolicy interface {
	Split(boxes []geom.Box, minEntries int) (left, right []int)
}

// LinearSplit seeds the groups with the pair of boxes that are farthest apart
// along one axis, relative to that axis' total extent, and then assigns the
// rest in order to the group that grows least.
type LinearSplit struct{}

// Split implements SplitPolicy.
func (LinearSplit) Split(boxes []geom.Box, minEntries int) (left, right []int) {
	a, b := linearSeeds(boxes)
	return distribute(boxes, a, b, minEntries, nil)
}

// linearSeeds returns the extreme pair on the axis with the greatest
// normalized separation.
func linearSeeds(boxes []geom.Box) (int, int) {
	bestSep := math.Inf(-1)
	seedA, seedB := 0, 1

	for axis := 0; axis < 2; axis++ {
		lowestHigh := 0
		lo, hi := boxes[0].Min(axis), boxes[0].Max(axis)

		for i := range boxes {
			if boxes[i].Max(axis) < boxes[lowestHigh].Max(axis) {
				lowestHigh = i
			}
			lo = math.Min(lo, boxes[i].Min(axis))
			hi = math.Max(hi, boxes[i].Max(axis))
		}

		highestLow := -1
		for i := range boxes {
			if i == lowestHigh {
				continue
			}
			if highestLow < 0 || boxes[i].Min(axis) > boxes[highestLow].Min(axis) {
				highestLow = i
			}
		}

		sep := boxes[highestLow].Min(axis) - boxes[lowestHigh].Max(axis)
		if width := hi - lo; width > 0 {
			sep /= width
		}

		if sep > bestSep {
			bestSep = sep
			seedA, seedB = lowestHigh, highestLow
		}
	}

	return seedA, seedB
}

// QuadraticSplit seeds the groups with the pair that would waste the most
// area if put together, then repeatedly assigns the box with the strongest
// preference for one group.
type QuadraticSplit struct{}

// Split implements SplitPolicy.
func (QuadraticSplit) Split(boxes []geom.Box, minEntries int) (left, right []int) {
	a, b := quadraticSeeds(boxes)
	return distribute(boxes, a, b, minEntries, pickNextQuadratic)
}

func quadraticSeeds(boxes []geom.Box) (int, int) {
	seedA, seedB := 0, 1
	worst := math.Inf(-1)

	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			waste := boxes[i].Union(boxes[j]).Area() - boxes[i].Area() - boxes[j].Area()
			if waste > worst {
				worst = waste
				seedA, seedB = i, j
			}
		}
	}

	return seedA, seedB
}

// pickNextQuadratic returns the position in rest of the box whose
// enlargement cost differs most between the two groups.
func pickNextQuadratic(boxes []geom.Box, rest []int, coverA, coverB geom.Box) int {
	best, bestDiff := 0, math.Inf(-1)

	for k, i := range rest {
		diff := math.Abs(coverA.Enlargement(boxes[i]) - coverB.Enlargement(boxes[i]))
		if diff > bestDiff {
			best, bestDiff = k, diff
		}
	}

	return best
}

type pickFunc func(boxes []geom.Box, rest []int, coverA, coverB geom.Box) int

// distribute seeds two groups with a and b and assigns the remaining boxes.
// A nil pick takes them in input order. Once a group needs every remaining
// box to reach minEntries, all of them go to that group.
func distribute(boxes []geom.Box, a, b, minEntries int, pick pickFunc) (left, right []int) {
	left = append(make([]int, 0, len(boxes)), a)
	right = append(make([]int, 0, len(boxes)), b)
	coverA, coverB := boxes[a], boxes[b]

	rest := make([]int, 0, len(boxes)-2)
	for i := range boxes {
		if i != a && i != b {
			rest = append(rest, i)
		}
	}

	for len(rest) > 0 {
		if len(left)+len(rest) <= minEntries {
			return append(left, rest...), right
		}

		if len(right)+len(rest) <= minEntries {
			return left, append(right, rest...)
		}

		k := 0
		if pick != nil {
			k = pick(boxes, rest, coverA, coverB)
		}

		i := rest[k]
		rest = append(rest[:k], rest[k+1:]...)

		if preferLeft(boxes[i], coverA, coverB, len(left), len(right)) {
			left = append(left, i)
			coverA = coverA.Union(boxes[i])
		} else {
			right = append(right, i)
			coverB = coverB.Union(boxes[i])
		}
	}

	return left, right
}

// preferLeft picks the group needing less enlargement, then the group with
// fewer members, then the smaller cover.
func preferLeft(box, coverA, coverB geom.Box, nA, nB int) bool {
	enlA, enlB := coverA.Enlargement(box), coverB.Enlargement(box)
	if enlA != enlB {
		return enlA < enlB
	}

	if nA != nB {
		return nA < nB
	}

	return coverA.Area() <= coverB.Area()
}
