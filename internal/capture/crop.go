package capture

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/liveness"
)

// DefaultCropMargin widens the face box by 20% on each side so the embedding
// model sees the hairline and chin.
const DefaultCropMargin = 0.2

// Crop is a face crop. Besides the pixels it keeps the JPEG encoding made
// from the camera Mat, so the embedding helper is fed without re-encoding.
type Crop struct {
	image.Image
	jpeg []byte
}

// JPEG returns the encoded crop.
func (c *Crop) JPEG() []byte {
	return c.jpeg
}

// CropFace copies the region under box, grown by margin and clamped to the
// frame, out of frame. The result is a *Crop.
func CropFace(frame *gocv.Mat, box liveness.FaceBox, margin float64) (image.Image, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	rect := CropRect(box, margin, frame.Cols(), frame.Rows())
	if rect.Empty() {
		return nil, ErrEmptyFrame
	}

	region := frame.Region(rect)
	defer region.Close()

	// Region shares the parent's stride; ToImage needs continuous data.
	crop := region.Clone()
	defer crop.Close()

	img, err := crop.ToImage()
	if err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	defer buf.Close()

	return &Crop{Image: img, jpeg: append([]byte(nil), buf.GetBytes()...)}, nil
}

// CropRect converts box into an integer rectangle grown by margin on every
// side and clipped to a width x height frame.
func CropRect(box liveness.FaceBox, margin float64, width, height int) image.Rectangle {
	if !box.Valid() || width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	if margin < 0 {
		margin = 0
	}

	dx := box.Width * margin
	dy := box.Height * margin
	rect := image.Rect(
		int(math.Floor(box.X-dx)),
		int(math.Floor(box.Y-dy)),
		int(math.Ceil(box.X+box.Width+dx)),
		int(math.Ceil(box.Y+box.Height+dy)),
	)
	return rect.Intersect(image.Rect(0, 0, width, height))
}
