package detect

import (
	"image"
	"math"
	"testing"
)

const testCandidates = 8400

// makeOutput builds a [116 x candidates] tensor with all scores zero.
func makeOutput() []float32 {
	return make([]float32, (4+numClasses+maskCoeffCount)*testCandidates)
}

// setCandidate writes one candidate's box, class score, and mask coefficients.
func setCandidate(out []float32, i, classID int, score, cx, cy, w, h float32) {
	at := func(attr int) int { return attr*testCandidates + i }
	out[at(0)] = cx
	out[at(1)] = cy
	out[at(2)] = w
	out[at(3)] = h
	out[at(4+classID)] = score
	for c := 0; c < maskCoeffCount; c++ {
		out[at(4+numClasses+c)] = 0.1
	}
}

func TestDecodeOutput_confidenceFilterAndClass(t *testing.T) {
	lb := newLetterbox(InputSize, InputSize) // identity transform
	out := makeOutput()
	setCandidate(out, 0, 41, 0.9, 320, 320, 100, 100) // cup
	setCandidate(out, 1, 0, 0.1, 100, 100, 50, 50)    // weak person, below threshold

	dets := decodeOutput(out, lb, 0.25, 0.45)
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	d := dets[0]
	if d.ClassID != 41 || d.ClassName != "cup" {
		t.Errorf("class=%d(%s), want 41(cup)", d.ClassID, d.ClassName)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence=%v, want 0.9", d.Confidence)
	}
	wantBox := image.Rect(270, 270, 370, 370)
	if d.Box != wantBox {
		t.Errorf("box=%v, want %v", d.Box, wantBox)
	}
}

func TestDecodeOutput_nmsSuppressesOverlap(t *testing.T) {
	lb := newLetterbox(InputSize, InputSize)
	out := makeOutput()
	setCandidate(out, 0, 41, 0.9, 320, 320, 100, 100)
	setCandidate(out, 1, 41, 0.8, 325, 325, 100, 100) // heavy overlap, same class
	setCandidate(out, 2, 41, 0.7, 100, 100, 50, 50)   // far away, kept

	dets := decodeOutput(out, lb, 0.25, 0.45)
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2 after NMS", len(dets))
	}
	if dets[0].Confidence != 0.9 || dets[1].Confidence != 0.7 {
		t.Errorf("kept confidences %v/%v, want 0.9/0.7", dets[0].Confidence, dets[1].Confidence)
	}
}

func TestDecodeOutput_nmsKeepsDifferentClasses(t *testing.T) {
	lb := newLetterbox(InputSize, InputSize)
	out := makeOutput()
	setCandidate(out, 0, 41, 0.9, 320, 320, 100, 100)
	setCandidate(out, 1, 45, 0.8, 320, 320, 100, 100) // same box, different class

	dets := decodeOutput(out, lb, 0.25, 0.45)
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2 (NMS is class-aware)", len(dets))
	}
}

func TestDecodeOutput_sortedByConfidence(t *testing.T) {
	lb := newLetterbox(InputSize, InputSize)
	out := makeOutput()
	setCandidate(out, 0, 41, 0.5, 100, 100, 50, 50)
	setCandidate(out, 1, 41, 0.9, 400, 400, 50, 50)

	dets := decodeOutput(out, lb, 0.25, 0.45)
	if len(dets) != 2 || dets[0].Confidence != 0.9 {
		t.Fatalf("detections not sorted by confidence: %+v", dets)
	}
}

func TestLetterbox_wideImage(t *testing.T) {
	lb := newLetterbox(1280, 640)
	if math.Abs(lb.scale-0.5) > 1e-9 {
		t.Errorf("scale=%v, want 0.5", lb.scale)
	}
	if lb.padX != 0 {
		t.Errorf("padX=%d, want 0", lb.padX)
	}
	if lb.padY != 160 {
		t.Errorf("padY=%d, want 160", lb.padY)
	}
	// A box covering the full letterbox content maps back to the full image.
	back := lb.toOriginal(image.Rect(0, 160, 640, 480))
	if back != image.Rect(0, 0, 1280, 640) {
		t.Errorf("toOriginal=%v, want full image", back)
	}
}

func TestLetterbox_boxClampedToImage(t *testing.T) {
	lb := newLetterbox(320, 320)
	back := lb.toOriginal(image.Rect(-10, -10, 700, 700))
	if back != image.Rect(0, 0, 320, 320) {
		t.Errorf("toOriginal=%v, want clamped to image bounds", back)
	}
}

func TestIOU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := iou(a, a); got != 1 {
		t.Errorf("iou(a,a)=%v, want 1", got)
	}
	b := image.Rect(20, 20, 30, 30)
	if got := iou(a, b); got != 0 {
		t.Errorf("disjoint iou=%v, want 0", got)
	}
	c := image.Rect(5, 0, 15, 10)
	want := float32(50) / float32(150)
	if got := iou(a, c); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("iou=%v, want %v", got, want)
	}
}

func TestResult_person(t *testing.T) {
	r := &Result{Detections: []Detection{
		{ClassID: 41, Confidence: 0.9},
		{ClassID: PersonClassID, Confidence: 0.5},
	}}
	if _, ok := r.Person(0.40); !ok {
		t.Error("person at 0.5 should trip the 0.40 gate")
	}
	if _, ok := r.Person(0.60); ok {
		t.Error("person at 0.5 should not trip a 0.60 gate")
	}
}

func TestClassName(t *testing.T) {
	if got := ClassName(0); got != "person" {
		t.Errorf("ClassName(0)=%q", got)
	}
	if got := ClassName(79); got != "toothbrush" {
		t.Errorf("ClassName(79)=%q", got)
	}
	if got := ClassName(80); got != "unknown" {
		t.Errorf("ClassName(80)=%q", got)
	}
}
