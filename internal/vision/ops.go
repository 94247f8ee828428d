// Package vision provides the OpenCV image operations behind the matching
// pipeline: decoding, stone-view stenciling, structure-view edge extraction,
// and the mask/inpaint debug exports.
package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Canny hysteresis thresholds for the structure view.
const (
	cannyLowThreshold  = 100
	cannyHighThreshold = 200
)

// Remove-stone parameters: the mask is grown with a 25x25 kernel so
// inpainting swallows the stone's edges, then filled with Telea radius 15.
const (
	dilateKernelSize = 25
	inpaintRadius    = 15
)

// DecodeBGR decodes an encoded image (PNG/JPEG) into a 3-channel BGR Mat.
// The caller owns the returned Mat and must Close it.
func DecodeBGR(data []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("decode image: empty result")
	}
	return img, nil
}

// ReadBGR reads an image file into a 3-channel BGR Mat.
func ReadBGR(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("read image %s: empty or unreadable", path)
	}
	return img, nil
}

// StoneView stencils the binary mask (CV_8U, 0/255, same size as img) over
// img: pixels outside the mask become zero.
func StoneView(img gocv.Mat, mask gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.BitwiseAndWithMask(img, img, &out, mask)
	return out
}

// StructureView converts img to single-channel intensity, runs Canny edge
// detection, and replicates the edge map across three channels.
func StructureView(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, cannyLowThreshold, cannyHighThreshold)

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{edges, edges, edges}, &out)
	return out
}

// GrayTriplicate converts img to grayscale and replicates it across three
// channels. This is the "bare setting" base image for stone removal.
func GrayTriplicate(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{gray, gray, gray}, &out)
	return out
}

// StoneCutout renders the isolated stone as a grayscale-plus-alpha PNG:
// channels are (gray, gray, gray, mask).
func StoneCutout(img gocv.Mat, mask gocv.Mat) ([]byte, error) {
	stone := StoneView(img, mask)
	defer stone.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(stone, &gray, gocv.ColorBGRToGray)

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.Merge([]gocv.Mat{gray, gray, gray, mask}, &bgra)
	return EncodePNG(bgra)
}

// RemoveStone reveals the bare setting: the stone mask is dilated and the
// covered region inpainted out of the structure image. Returns a PNG.
func RemoveStone(structure gocv.Mat, mask gocv.Mat) ([]byte, error) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(dilateKernelSize, dilateKernelSize))
	defer kernel.Close()

	expanded := gocv.NewMat()
	defer expanded.Close()
	gocv.Dilate(mask, &expanded, kernel)

	filled := gocv.NewMat()
	defer filled.Close()
	gocv.Inpaint(structure, expanded, &filled, inpaintRadius, gocv.Telea)
	return EncodePNG(filled)
}

// EncodePNG encodes a Mat as PNG bytes.
func EncodePNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
