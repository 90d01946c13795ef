package plinko

import "math"

// contact describes how far a circle overlaps a static shape and the
// direction that pushes it out.
type contact struct {
	normal Vec2 // unit vector from the shape toward the circle centre
	point  Vec2 // closest point on the shape surface
	depth  float64
}

// closestPointOnSegment returns the point on segment a→b nearest to p.
func closestPointOnSegment(p, a, b Vec2) Vec2 {
	ab := b.Minus(a)
	denom := ab.MagnitudeSquared()
	if denom == 0 {
		return a
	}
	t := p.Minus(a).Dot(ab) / denom
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Plus(ab.Times(t))
}

// circleCircle tests a moving circle against a static one.
func circleCircle(center Vec2, radius float64, other Vec2, otherRadius float64) (contact, bool) {
	d := center.Minus(other)
	dist := d.Magnitude()
	minDist := radius + otherRadius
	if dist >= minDist {
		return contact{}, false
	}

	n := Vec2{X: 0, Y: -1}
	if dist > 1e-9 {
		n = d.Times(1 / dist)
	}
	return contact{
		normal: n,
		point:  other.Plus(n.Times(otherRadius)),
		depth:  minDist - dist,
	}, true
}

// pointInConvex reports whether p lies inside the convex polygon. Winding
// order does not matter.
func pointInConvex(p Vec2, verts []Vec2) bool {
	sign := 0
	for i := range verts {
		a := verts[i]
		b := verts[(i+1)%len(verts)]
		c := b.Minus(a).Cross(p.Minus(a))
		switch {
		case c > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case c < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return true
}

// centroid returns the vertex average, which is inside any convex polygon.
func centroid(verts []Vec2) Vec2 {
	var c Vec2
	for _, v := range verts {
		c = c.Plus(v)
	}
	if len(verts) == 0 {
		return c
	}
	return c.Times(1 / float64(len(verts)))
}

// circlePolygon tests a circle against a static convex polygon.
func circlePolygon(center Vec2, radius float64, verts []Vec2) (contact, bool) {
	if len(verts) < 3 {
		return contact{}, false
	}

	best := math.Inf(1)
	var closest, edgeA, edgeB Vec2
	for i := range verts {
		a := verts[i]
		b := verts[(i+1)%len(verts)]
		p := closestPointOnSegment(center, a, b)
		if d2 := center.Minus(p).MagnitudeSquared(); d2 < best {
			best = d2
			closest = p
			edgeA, edgeB = a, b
		}
	}

	dist := math.Sqrt(best)
	inside := pointInConvex(center, verts)
	if !inside && dist >= radius {
		return contact{}, false
	}

	var n Vec2
	switch {
	case dist > 1e-9 && inside:
		n = closest.Minus(center).Times(1 / dist)
	case dist > 1e-9:
		n = center.Minus(closest).Times(1 / dist)
	default:
		// Centre exactly on the surface: use the edge normal facing away
		// from the polygon.
		n = edgeB.Minus(edgeA).RightNormal().Normalize()
		if n.Dot(closest.Minus(centroid(verts))) < 0 {
			n = n.Times(-1)
		}
	}

	depth := radius - dist
	if inside {
		depth = radius + dist
	}
	return contact{normal: n, point: closest, depth: depth}, true
}
