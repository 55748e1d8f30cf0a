package occlusion

import "math"

const epsilon = 1e-9

// orient is twice the signed area of triangle (a, b, c).
func orient(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// onSegment assumes (px, py) is collinear with the segment.
func onSegment(ax, ay, bx, by, px, py float64) bool {
	return px >= math.Min(ax, bx)-epsilon && px <= math.Max(ax, bx)+epsilon &&
		py >= math.Min(ay, by)-epsilon && py <= math.Max(ay, by)+epsilon
}

func sign(v float64) int {
	switch {
	case v > epsilon:
		return 1
	case v < -epsilon:
		return -1
	}
	return 0
}

// segmentsIntersect is an inclusive intersection test: touching endpoints and
// collinear overlap both count.
func segmentsIntersect(p1x, p1y, p2x, p2y, q1x, q1y, q2x, q2y float64) bool {
	d1 := sign(orient(q1x, q1y, q2x, q2y, p1x, p1y))
	d2 := sign(orient(q1x, q1y, q2x, q2y, p2x, p2y))
	d3 := sign(orient(p1x, p1y, p2x, p2y, q1x, q1y))
	d4 := sign(orient(p1x, p1y, p2x, p2y, q2x, q2y))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	if d1 == 0 && onSegment(q1x, q1y, q2x, q2y, p1x, p1y) {
		return true
	}
	if d2 == 0 && onSegment(q1x, q1y, q2x, q2y, p2x, p2y) {
		return true
	}
	if d3 == 0 && onSegment(p1x, p1y, p2x, p2y, q1x, q1y) {
		return true
	}
	if d4 == 0 && onSegment(p1x, p1y, p2x, p2y, q2x, q2y) {
		return true
	}
	return false
}
