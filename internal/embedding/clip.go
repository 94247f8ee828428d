package embedding

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	ort "github.com/yalue/onnxruntime_go"
)

// CLIPEmbedder runs the CLIP ViT-B/32 image encoder through ONNX Runtime.
// No gradient computation, no output normalization: the raw image features
// are what the catalog vectors were built from.
type CLIPEmbedder struct {
	session      *ort.AdvancedSession
	dimensions   int
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewCLIPEmbedder creates an embedder from the visual encoder at modelPath.
func NewCLIPEmbedder(modelPath string, dimensions int) (*CLIPEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, ImageSize, ImageSize),
		make([]float32, 3*ImageSize*ImageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &CLIPEmbedder{
		session:      session,
		dimensions:   dimensions,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// EmbedImage returns the 512-dim CLIP image features for a BGR image.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, img gocv.Mat) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputData, err := Preprocess(img)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), inputData)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := e.outputTensor.GetData()
	emb := make([]float32, e.dimensions)
	copy(emb, outputData[:e.dimensions])
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
