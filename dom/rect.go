package dom

// Rect is a rendered bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no rendered area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersection returns the overlap of r and o, or a zero Rect.
func (r Rect) Intersection(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// VisibleFraction returns the share of r's area inside viewport, in [0,1].
func (r Rect) VisibleFraction(viewport Rect) float64 {
	if r.Empty() {
		return 0
	}
	in := r.Intersection(viewport)
	return (in.Width * in.Height) / (r.Width * r.Height)
}
