package detect

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs instance segmentation over a BGR image. The confidence
// threshold is per call because the encoder and the query gate use
// different ones against the same session.
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat, confThreshold float32) (*Result, error)
	Close() error
}

// ONNXDetector is a Detector backed by a YOLOv8-seg ONNX session.
// Tensors are preallocated once; Run is serialized with a mutex.
type ONNXDetector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	protoTensor  *ort.Tensor[float32]
	iouThreshold float32
	mu           sync.Mutex
}

// NewONNXDetector creates a detector from the model at modelPath.
// The ONNX Runtime environment must already be initialized.
func NewONNXDetector(modelPath string, iouThreshold float32) (*ONNXDetector, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 2 {
		return nil, fmt.Errorf("unexpected model signature: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, InputSize, InputSize),
		make([]float32, 3*InputSize*InputSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	attrs := int64(4 + numClasses + maskCoeffCount)
	// Anchor-free candidates across the three strides: 80^2 + 40^2 + 20^2 = 8400.
	candidates := int64((InputSize/8)*(InputSize/8) + (InputSize/16)*(InputSize/16) + (InputSize/32)*(InputSize/32))
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, attrs, candidates))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	protoTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, maskCoeffCount, protoSize, protoSize))
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create prototype tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name, outputs[1].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor, protoTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		protoTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXDetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		protoTensor:  protoTensor,
		iouThreshold: iouThreshold,
	}, nil
}

// Detect runs segmentation over img and decodes detections above confThreshold.
func (d *ONNXDetector) Detect(ctx context.Context, img gocv.Mat, confThreshold float32) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputData, lb := preprocess(img)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), inputData)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out0 := make([]float32, len(d.outputTensor.GetData()))
	copy(out0, d.outputTensor.GetData())
	protos := make([]float32, len(d.protoTensor.GetData()))
	copy(protos, d.protoTensor.GetData())

	return &Result{
		Detections: decodeOutput(out0, lb, confThreshold, d.iouThreshold),
		protos:     protos,
		lb:         lb,
	}, nil
}

// Close destroys the session and tensors.
func (d *ONNXDetector) Close() error {
	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		_ = d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		_ = d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.protoTensor != nil {
		_ = d.protoTensor.Destroy()
		d.protoTensor = nil
	}
	return err
}
