package compositor

import (
	"image"
	"math"
)

// Placement is where the cutout lands on the canvas, in canvas pixels.
// Offsets are negative when the cutout overflows the canvas.
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Layout fits a srcW x srcH cutout onto a targetW x targetH canvas without
// distortion. The cutout fills the canvas along its dominant axis and is
// centred along the other, overflowing it symmetrically.
func Layout(srcW, srcH, targetW, targetH int) Placement {
	origAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(targetW) / float64(targetH)

	if origAspect > targetAspect {
		height := float64(targetH)
		width := height * origAspect
		return Placement{
			X:      (float64(targetW) - width) / 2,
			Y:      0,
			Width:  width,
			Height: height,
		}
	}

	width := float64(targetW)
	height := width / origAspect
	return Placement{
		X:      0,
		Y:      (float64(targetH) - height) / 2,
		Width:  width,
		Height: height,
	}
}

// Pixels rounds the placement to whole pixels. Size is at least 1x1.
func (p Placement) Pixels() (offset image.Point, width, height int) {
	width = max(int(math.Round(p.Width)), 1)
	height = max(int(math.Round(p.Height)), 1)
	offset = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	return offset, width, height
}
