package processor

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sagarc03/affix"
)

// Mode selects how an image is fitted to a Geometry.
type Mode int

const (
	// Fit scales to fit inside the box, keeping the aspect ratio.
	Fit Mode = iota
	// Fill scales to cover the box and crops the overflow around the center.
	Fill
	// Shrink behaves like Fit but never enlarges.
	Shrink
	// Enlarge behaves like Fit but never shrinks.
	Enlarge
	// Exact scales to the box ignoring the aspect ratio.
	Exact
)

var geometryRegex = regexp.MustCompile(`^(\d*)(?:x(\d*))?([#>!<]?)$`)

// Geometry is a target box such as "100x100>" or "25x25#". A zero side is
// unconstrained.
type Geometry struct {
	Width  int
	Height int
	Mode   Mode
}

// ParseGeometry parses "W", "WxH", "xH" or "WxH" followed by one of the
// modifiers # (fill), > (shrink only), < (enlarge only) or ! (exact).
func ParseGeometry(s string) (Geometry, error) {
	m := geometryRegex.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return Geometry{}, fmt.Errorf("geometry %q: %w", s, affix.ErrInvalidInput)
	}

	var g Geometry
	var err error
	if m[1] != "" {
		if g.Width, err = strconv.Atoi(m[1]); err != nil {
			return Geometry{}, fmt.Errorf("geometry %q: %w", s, affix.ErrInvalidInput)
		}
	}
	if m[2] != "" {
		if g.Height, err = strconv.Atoi(m[2]); err != nil {
			return Geometry{}, fmt.Errorf("geometry %q: %w", s, affix.ErrInvalidInput)
		}
	}

	switch m[3] {
	case "#":
		g.Mode = Fill
	case ">":
		g.Mode = Shrink
	case "<":
		g.Mode = Enlarge
	case "!":
		g.Mode = Exact
	}

	if (g.Mode == Fill || g.Mode == Exact) && (g.Width == 0 || g.Height == 0) {
		return Geometry{}, fmt.Errorf("geometry %q: %w: both sides are required", s, affix.ErrInvalidInput)
	}

	return g, nil
}

// scaled returns the size of a w×h image fitted into g keeping the aspect
// ratio.
func (g Geometry) scaled(w, h int) (int, int) {
	if w == 0 || h == 0 {
		return w, h
	}
	rw := float64(g.Width) / float64(w)
	rh := float64(g.Height) / float64(h)

	var r float64
	switch {
	case g.Width == 0:
		r = rh
	case g.Height == 0:
		r = rw
	default:
		r = min(rw, rh)
	}

	return max(1, int(float64(w)*r+0.5)), max(1, int(float64(h)*r+0.5))
}

func (g Geometry) String() string {
	var mod string
	switch g.Mode {
	case Fill:
		mod = "#"
	case Shrink:
		mod = ">"
	case Enlarge:
		mod = "<"
	case Exact:
		mod = "!"
	}
	return fmt.Sprintf("%dx%d%s", g.Width, g.Height, mod)
}
