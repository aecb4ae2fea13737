package vision

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// EyeNet implements domain.EyeClassifier with an ONNX network of two
// outputs: index 0 scores Closed, index 1 scores Open.
type EyeNet struct {
	mu  sync.Mutex
	net gocv.Net
}

// LoadEyeNet reads an ONNX model.
func LoadEyeNet(path string) (*EyeNet, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: eye classifier %s", domain.ErrAssetLoad, path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &EyeNet{net: net}, nil
}

// Classify runs the network on a normalized single-channel image.
func (e *EyeNet) Classify(img domain.NormalizedImage) (domain.EyeState, error) {
	if img.Width <= 0 || img.Height <= 0 || len(img.Pix) != img.Width*img.Height {
		return domain.EyeOpen, fmt.Errorf("malformed input %dx%d with %d values", img.Width, img.Height, len(img.Pix))
	}

	src, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV32F, float32Bytes(img.Pix))
	if err != nil {
		return domain.EyeOpen, fmt.Errorf("input mat: %w", err)
	}
	defer src.Close()

	// Values are already in [0,1]; the blob only reshapes to 1x1xHxW.
	blob := gocv.BlobFromImage(src, 1.0, image.Pt(img.Width, img.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Total() < 2 {
		return domain.EyeOpen, fmt.Errorf("unexpected output size %d", out.Total())
	}
	scores := make([]float32, 2)
	for i := range scores {
		scores[i] = out.GetFloatAt(0, i)
	}
	return stateFromScores(scores), nil
}

// Close frees the network.
func (e *EyeNet) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

// stateFromScores takes the argmax; ties resolve to Closed.
func stateFromScores(scores []float32) domain.EyeState {
	if scores[int(domain.EyeOpen)] > scores[int(domain.EyeClosed)] {
		return domain.EyeOpen
	}
	return domain.EyeClosed
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

var _ domain.EyeClassifier = (*EyeNet)(nil)
