package captcha

import (
	"context"
	"image/color"
)

// solveSlideGuess is the built-in slider solver: slide the cutout piece
// across the shaded background and pick the horizontal offset with the
// smallest grayscale difference over the piece's opaque pixels. Good
// enough for the service's puzzle images, replaceable via
// OverrideSolver for anything smarter.
func solveSlideGuess(_ context.Context, in *Input) (*Result, error) {
	bg, piece := in.Background, in.Piece
	if bg == nil || piece == nil {
		return &Result{Kind: KindSlide}, nil
	}

	bb, pb := bg.Bounds(), piece.Bounds()
	if pb.Dx() == 0 || pb.Dy() == 0 || pb.Dx() > bb.Dx() || pb.Dy() > bb.Dy() {
		return &Result{Kind: KindSlide}, nil
	}

	bestX, bestScore := 0, int64(-1)
	maxX := bb.Dx() - pb.Dx()

	for x := 0; x <= maxX; x++ {
		var score int64
		var samples int64

		for py := 0; py < pb.Dy(); py += 2 {
			for px := 0; px < pb.Dx(); px += 2 {
				pc := piece.At(pb.Min.X+px, pb.Min.Y+py)
				if _, _, _, a := pc.RGBA(); a < 0x8000 {
					continue
				}
				bc := bg.At(bb.Min.X+x+px, bb.Min.Y+py)
				score += grayDiff(pc, bc)
				samples++
			}
		}
		if samples == 0 {
			continue
		}

		score /= samples
		if bestScore < 0 || score < bestScore {
			bestX, bestScore = x, score
		}
	}

	return &Result{Kind: KindSlide, X: bestX}, nil
}

func grayDiff(a, b color.Color) int64 {
	ga := int64(color.GrayModel.Convert(a).(color.Gray).Y)
	gb := int64(color.GrayModel.Convert(b).(color.Gray).Y)
	if ga > gb {
		return ga - gb
	}
	return gb - ga
}
