package embedding

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ImageSize is the square input side of the CLIP ViT-B/32 image encoder.
const ImageSize = 224

// CLIP per-channel normalization constants (RGB order).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess converts a BGR Mat into the CLIP input tensor: shortest side
// resized to 224, center-cropped to 224x224, scaled to [0,1], normalized
// with the CLIP mean/std, NCHW float32 in RGB channel order.
func Preprocess(img gocv.Mat) ([]float32, error) {
	src, err := img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert mat: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}
	// Resize so the shortest side is ImageSize, then center crop.
	var resized image.Image
	if w < h {
		resized = imaging.Resize(src, ImageSize, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(src, 0, ImageSize, imaging.Lanczos)
	}
	cropped := imaging.CropCenter(resized, ImageSize, ImageSize)

	out := make([]float32, 3*ImageSize*ImageSize)
	rBase := 0
	gBase := ImageSize * ImageSize
	bBase := 2 * ImageSize * ImageSize
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			r, g, bl, _ := cropped.At(x, y).RGBA()
			fr := float32(r) / 65535.0
			fg := float32(g) / 65535.0
			fb := float32(bl) / 65535.0

			out[rBase] = (fr - clipMean[0]) / clipStd[0]
			out[gBase] = (fg - clipMean[1]) / clipStd[1]
			out[bBase] = (fb - clipMean[2]) / clipStd[2]

			rBase++
			gBase++
			bBase++
		}
	}
	return out, nil
}
