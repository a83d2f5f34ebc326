// Package compositor renders a cutout onto a solid background canvas.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/obs"
)

type Compositor struct {
	logger *zap.Logger
}

func NewCompositor(logger *zap.Logger) *Compositor {
	return &Compositor{logger: logger}
}

// Compose returns a targetW x targetH canvas filled with bg and the cutout
// drawn over it at Layout's placement. The result depends only on the inputs.
func (c *Compositor) Compose(cutout image.Image, targetW, targetH int, bg color.Color) (*image.NRGBA, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, apperrors.Compositing(fmt.Sprintf("invalid target size %dx%d", targetW, targetH), nil)
	}
	bounds := cutout.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, apperrors.Compositing("cutout image is empty", nil)
	}

	placement := Layout(bounds.Dx(), bounds.Dy(), targetW, targetH)
	offset, width, height := placement.Pixels()

	c.logger.Debug("Compositing cutout",
		zap.Int("source_width", bounds.Dx()),
		zap.Int("source_height", bounds.Dy()),
		zap.Int("target_width", targetW),
		zap.Int("target_height", targetH),
		zap.Int("rendered_width", width),
		zap.Int("rendered_height", height),
		zap.Int("x", offset.X),
		zap.Int("y", offset.Y),
	)

	canvas := imaging.New(targetW, targetH, opaque(bg))

	// Only the part of the rendered cutout that lands on the canvas is
	// resized, so memory stays proportional to the canvas.
	dst := image.Rect(offset.X, offset.Y, offset.X+width, offset.Y+height).Intersect(canvas.Bounds())
	if dst.Empty() {
		return canvas, nil
	}
	src := visibleSource(dst.Sub(offset), bounds.Dx(), bounds.Dy(), width, height)

	visible := imaging.Crop(cutout, src.Add(bounds.Min))
	if visible.Bounds().Dx() != dst.Dx() || visible.Bounds().Dy() != dst.Dy() {
		visible = imaging.Resize(visible, dst.Dx(), dst.Dy(), imaging.Lanczos)
	}

	return imaging.Overlay(canvas, visible, dst.Min, 1.0), nil
}

// visibleSource maps r, given in rendered-cutout pixels (width x height),
// back to the smallest srcW x srcH source rectangle covering it.
func visibleSource(r image.Rectangle, srcW, srcH, width, height int) image.Rectangle {
	x0 := r.Min.X * srcW / width
	y0 := r.Min.Y * srcH / height
	x1 := min((r.Max.X*srcW+width-1)/width, srcW)
	y1 := min((r.Max.Y*srcH+height-1)/height, srcH)
	return image.Rect(x0, y0, max(x1, x0+1), max(y1, y0+1))
}

// Encode writes img as PNG.
func (c *Compositor) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		c.logger.Error("Failed to encode PNG", zap.Error(err))
		return nil, apperrors.Compositing("failed to encode image", err)
	}
	return buf.Bytes(), nil
}

// Render decodes an encoded cutout, composes it and encodes the result as PNG.
func (c *Compositor) Render(cutout []byte, targetW, targetH int, bg color.Color) ([]byte, error) {
	start := time.Now()
	defer func() { obs.ComposeDuration.Observe(time.Since(start).Seconds()) }()

	src, err := Decode(cutout)
	if err != nil {
		c.logger.Error("Failed to decode cutout", zap.Error(err))
		return nil, err
	}

	img, err := c.Compose(src, targetW, targetH, bg)
	if err != nil {
		return nil, err
	}
	return c.Encode(img)
}

// Decode parses an encoded cutout, applying any EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Compositing("failed to decode cutout image", err)
	}
	return img, nil
}

// opaque drops any alpha from the background colour.
func opaque(bg color.Color) color.NRGBA {
	n := color.NRGBAModel.Convert(bg).(color.NRGBA)
	n.A = 0xff
	return n
}
