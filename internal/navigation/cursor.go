package navigation

// Cursor is the current screen of a route session: Home, a meter index
// 0..n-1, the review screen at n, or the summary screen at n+1.
type Cursor int

// Home is the cursor of the route's home screen.
const Home Cursor = -1

// Screen names the kind of screen a cursor points to.
type Screen string

const (
	ScreenHome    Screen = "home"
	ScreenMeter   Screen = "meter"
	ScreenReview  Screen = "review"
	ScreenSummary Screen = "summary"
	ScreenInvalid Screen = "invalid"
)

// MeterCursor returns the cursor of meter index i.
func MeterCursor(i int) Cursor { return Cursor(i) }

// ReviewCursor returns the review cursor of a route with n meters.
func ReviewCursor(n int) Cursor { return Cursor(n) }

// SummaryCursor returns the summary cursor of a route with n meters.
func SummaryCursor(n int) Cursor { return Cursor(n + 1) }

// Screen classifies c for a route with n meters.
func (c Cursor) Screen(n int) Screen {
	switch {
	case c == Home:
		return ScreenHome
	case c >= 0 && int(c) < n:
		return ScreenMeter
	case int(c) == n:
		return ScreenReview
	case int(c) == n+1:
		return ScreenSummary
	default:
		return ScreenInvalid
	}
}

// IsMeter reports whether c points at a meter of a route with n meters.
func (c Cursor) IsMeter(n int) bool { return c.Screen(n) == ScreenMeter }
