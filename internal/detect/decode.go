package detect

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/Ali-Hamza-007/Ring-Search-System/pkg/utils"
)

// decodeOutput turns the raw detection head tensor [1, 116, 8400] into
// detections above confThreshold, with class-aware NMS applied.
func decodeOutput(out0 []float32, lb letterbox, confThreshold, iouThreshold float32) []Detection {
	attrs := 4 + numClasses + maskCoeffCount
	candidates := len(out0) / attrs
	at := func(attr, i int) float32 { return out0[attr*candidates+i] }

	var dets []Detection
	for i := 0; i < candidates; i++ {
		bestClass := 0
		bestScore := at(4, i)
		for c := 1; c < numClasses; c++ {
			if s := at(4+c, i); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if bestScore < confThreshold {
			continue
		}
		cx, cy := at(0, i), at(1, i)
		w, h := at(2, i), at(3, i)
		boxLB := image.Rect(
			int(cx-w/2+0.5), int(cy-h/2+0.5),
			int(cx+w/2+0.5), int(cy+h/2+0.5),
		)
		coeffs := make([]float32, maskCoeffCount)
		for c := 0; c < maskCoeffCount; c++ {
			coeffs[c] = at(4+numClasses+c, i)
		}
		dets = append(dets, Detection{
			ClassID:      bestClass,
			ClassName:    ClassName(bestClass),
			Confidence:   bestScore,
			Box:          lb.toOriginal(boxLB),
			LetterboxBox: boxLB,
			MaskCoeffs:   coeffs,
		})
	}
	return nonMaxSuppression(dets, iouThreshold)
}

// nonMaxSuppression keeps the highest-confidence detection among overlapping
// boxes of the same class.
func nonMaxSuppression(dets []Detection, iouThreshold float32) []Detection {
	sort.Slice(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	var kept []Detection
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && iou(k.LetterboxBox, d.LetterboxBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
			if len(kept) >= maxDetections {
				break
			}
		}
	}
	return kept
}

// iou returns the intersection-over-union of two boxes.
func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if union <= 0 {
		return 0
	}
	return float32(interArea) / float32(union)
}

// FirstMask materializes the first (highest-confidence) instance mask as a
// binary CV_8U Mat of the original image size: sigmoid of the prototype
// combination, cropped to the detection box, resized, and binarized at 0.5.
// The caller owns the returned Mat.
func (r *Result) FirstMask() (gocv.Mat, error) {
	if !r.HasMask() {
		return gocv.Mat{}, fmt.Errorf("no mask available")
	}
	return r.instanceMask(r.Detections[0])
}

func (r *Result) instanceMask(d Detection) (gocv.Mat, error) {
	if len(r.protos) != maskCoeffCount*protoSize*protoSize {
		return gocv.Mat{}, fmt.Errorf("prototype tensor has %d values, want %d",
			len(r.protos), maskCoeffCount*protoSize*protoSize)
	}

	// Detection box on the prototype grid (letterbox / 4).
	downscale := InputSize / protoSize
	box := image.Rect(
		d.LetterboxBox.Min.X/downscale, d.LetterboxBox.Min.Y/downscale,
		(d.LetterboxBox.Max.X+downscale-1)/downscale, (d.LetterboxBox.Max.Y+downscale-1)/downscale,
	).Intersect(image.Rect(0, 0, protoSize, protoSize))

	grid := gocv.NewMatWithSize(protoSize, protoSize, gocv.MatTypeCV32F)
	defer grid.Close()
	plane := protoSize * protoSize
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			i := y*protoSize + x
			var v float32
			for c := 0; c < maskCoeffCount; c++ {
				v += d.MaskCoeffs[c] * r.protos[c*plane+i]
			}
			grid.SetFloatAt(y, x, utils.Sigmoid(v))
		}
	}

	// Drop the letterbox padding before scaling back to the original size.
	scaledW, scaledH := r.lb.scaledSize()
	content := grid.Region(image.Rect(
		r.lb.padX/downscale, r.lb.padY/downscale,
		(r.lb.padX+scaledW)/downscale, (r.lb.padY+scaledH)/downscale,
	))
	defer content.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(content, &resized, image.Pt(r.lb.origW, r.lb.origH), 0, 0, gocv.InterpolationLinear)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(resized, &binary, 0.5, 255, gocv.ThresholdBinary)

	mask := gocv.NewMat()
	binary.ConvertTo(&mask, gocv.MatTypeCV8U)
	return mask, nil
}
