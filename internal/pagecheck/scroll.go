package pagecheck

import "math"

// Default bounds for where an anchor target's top edge may land after a jump.
// Sticky headers push targets down, so the window is not zero-based only.
const (
	DefaultNearTopMin = 0
	DefaultNearTopMax = 260
	// TopTolerance is how far from scrollY 0 still counts as the page top.
	TopTolerance = 5
)

// NearTop reports whether an element's viewport top lies within [min, max].
func NearTop(top, min, max int) bool {
	return top >= min && top <= max
}

// AtTop reports whether scrollY is at the top of the document.
func AtTop(scrollY float64) bool {
	return math.Round(scrollY) <= TopTolerance
}

// ScrollSettled reports whether two scrollY samples taken a short interval
// apart show the page has stopped moving.
func ScrollSettled(y1, y2 float64) bool {
	return math.Round(math.Abs(y2-y1)) <= 1
}
