package captcha

import "strconv"

// Point is one click coordinate on the verification image.
type Point struct {
	X int
	Y int
}

// Result is the solver output for one challenge: a slider offset, a
// rotation angle, or one/three click points depending on the kind.
type Result struct {
	Kind   Kind
	X      int
	Points []Point
}

func renderPoint(p Point) string {
	return "%7B%22x%22%3A" + strconv.Itoa(p.X) + "%2C%22y%22%3A" + strconv.Itoa(p.Y) + "%7D"
}

// Fragment renders the result into the exact byte sequence the check
// endpoint expects in textClickArr. The server compares these strings
// verbatim, so they are concatenated rather than JSON-encoded.
func (r *Result) Fragment() string {
	switch r.Kind {
	case KindSlide, KindRotate:
		return "%5B%7B%22x%22%3A" + strconv.Itoa(r.X) + "%7D%5D"
	case KindIconClick, KindTextClick:
		out := "%5B"
		for i, p := range r.Points {
			if i > 0 {
				out += ","
			}
			out += renderPoint(p)
		}
		return out + "%5D"
	case KindObstacle:
		if len(r.Points) == 0 {
			return "%5B%5D"
		}
		return "%5B" + renderPoint(r.Points[0]) + "%5D"
	default:
		return "%5B%5D"
	}
}
