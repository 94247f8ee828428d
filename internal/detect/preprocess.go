package detect

import (
	"image"

	"gocv.io/x/gocv"
)

// letterboxFill is the gray padding value used around the scaled image.
const letterboxFill = 114

// letterbox describes the aspect-preserving resize that maps the original
// image into the square model input.
type letterbox struct {
	scale        float64
	padX, padY   int
	origW, origH int
}

// newLetterbox computes the letterbox transform for an origW x origH image.
func newLetterbox(origW, origH int) letterbox {
	scale := float64(InputSize) / float64(origW)
	if s := float64(InputSize) / float64(origH); s < scale {
		scale = s
	}
	scaledW := int(float64(origW)*scale + 0.5)
	scaledH := int(float64(origH)*scale + 0.5)
	return letterbox{
		scale: scale,
		padX:  (InputSize - scaledW) / 2,
		padY:  (InputSize - scaledH) / 2,
		origW: origW,
		origH: origH,
	}
}

// scaledSize returns the size of the image content inside the letterbox.
func (lb letterbox) scaledSize() (w, h int) {
	return int(float64(lb.origW)*lb.scale + 0.5), int(float64(lb.origH)*lb.scale + 0.5)
}

// toOriginal maps a box from letterbox pixels back to original image pixels,
// clamped to the image bounds.
func (lb letterbox) toOriginal(box image.Rectangle) image.Rectangle {
	x0 := int(float64(box.Min.X-lb.padX)/lb.scale + 0.5)
	y0 := int(float64(box.Min.Y-lb.padY)/lb.scale + 0.5)
	x1 := int(float64(box.Max.X-lb.padX)/lb.scale + 0.5)
	y1 := int(float64(box.Max.Y-lb.padY)/lb.scale + 0.5)
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, lb.origW, lb.origH))
}

// preprocess letterboxes a BGR image into the model input tensor:
// RGB, [0,1], NCHW, 640x640. Returns the tensor data and the transform.
func preprocess(img gocv.Mat) ([]float32, letterbox) {
	lb := newLetterbox(img.Cols(), img.Rows())
	scaledW, scaledH := lb.scaledSize()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(scaledW, scaledH), 0, 0, gocv.InterpolationLinear)

	canvas := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(letterboxFill, letterboxFill, letterboxFill, 0),
		InputSize, InputSize, gocv.MatTypeCV8UC3,
	)
	defer canvas.Close()
	roi := canvas.Region(image.Rect(lb.padX, lb.padY, lb.padX+scaledW, lb.padY+scaledH))
	resized.CopyTo(&roi)
	roi.Close()

	out := make([]float32, 3*InputSize*InputSize)
	rBase := 0
	gBase := InputSize * InputSize
	bBase := 2 * InputSize * InputSize
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			px := canvas.GetVecbAt(y, x) // BGR
			out[rBase] = float32(px[2]) / 255.0
			out[gBase] = float32(px[1]) / 255.0
			out[bBase] = float32(px[0]) / 255.0
			rBase++
			gBase++
			bBase++
		}
	}
	return out, lb
}
