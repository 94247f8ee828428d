// Package detect runs YOLOv8 instance segmentation through ONNX Runtime and
// decodes its raw outputs into class detections and binary stone masks.
package detect

import "image"

// Model geometry for the YOLOv8-seg ONNX export.
const (
	// InputSize is the square letterbox side the model expects.
	InputSize = 640
	// numClasses is the COCO class count in the detection head.
	numClasses = 80
	// maskCoeffCount is the number of per-detection mask coefficients.
	maskCoeffCount = 32
	// protoSize is the side of the square mask prototype grid.
	protoSize = 160
	// maxDetections caps the number of detections kept after NMS.
	maxDetections = 300
)

// Detection is one segmented object in the original image coordinates.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float32
	// Box is the bounding box in original image pixels.
	Box image.Rectangle
	// LetterboxBox is the box in letterbox (model input) pixels, kept for
	// cropping the instance mask on the prototype grid.
	LetterboxBox image.Rectangle
	// MaskCoeffs are the 32 prototype coefficients for this instance.
	MaskCoeffs []float32
}

// Result holds the detections for one image, sorted by confidence
// descending, together with the mask prototypes needed to materialize
// per-instance masks.
type Result struct {
	Detections []Detection
	// protos is the flattened [32][160][160] prototype tensor.
	protos []float32
	lb     letterbox
}

// NewResult builds a Result from already-decoded detections, the flattened
// [32][160][160] prototype tensor, and the original image size. Useful for
// assembling results outside the ONNX session.
func NewResult(dets []Detection, protos []float32, origW, origH int) *Result {
	return &Result{
		Detections: dets,
		protos:     protos,
		lb:         newLetterbox(origW, origH),
	}
}

// HasMask reports whether at least one segmented instance was produced.
func (r *Result) HasMask() bool {
	return len(r.Detections) > 0
}

// Person returns the first person detection with confidence strictly
// above minConf, if any.
func (r *Result) Person(minConf float32) (Detection, bool) {
	for _, d := range r.Detections {
		if d.ClassID == PersonClassID && d.Confidence > minConf {
			return d, true
		}
	}
	return Detection{}, false
}
