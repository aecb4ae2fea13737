package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// ClassifierConfig holds detector parameters and the classifier input size.
type ClassifierConfig struct {
	FaceParams domain.DetectParams
	EyeParams  domain.DetectParams
	InputSize  int
}

// DefaultClassifierConfig returns the default detection parameters.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		FaceParams: domain.DetectParams{ScaleFactor: 1.1, MinNeighbors: 5, MinSize: 30},
		EyeParams:  domain.DetectParams{ScaleFactor: 1.1, MinNeighbors: 5, MinSize: 20},
		InputSize:  DefaultInputSize,
	}
}

// FrameClassifierImpl implements domain.FrameClassifier.
type FrameClassifierImpl struct {
	config     ClassifierConfig
	faces      domain.RegionDetector
	leftEyes   domain.RegionDetector
	rightEyes  domain.RegionDetector
	classifier domain.EyeClassifier
	logger     *zap.Logger
}

// NewFrameClassifier creates a frame classifier from its detectors and eye model.
func NewFrameClassifier(
	config ClassifierConfig,
	faces domain.RegionDetector,
	leftEyes domain.RegionDetector,
	rightEyes domain.RegionDetector,
	classifier domain.EyeClassifier,
	logger *zap.Logger,
) *FrameClassifierImpl {
	if config.InputSize <= 0 {
		config.InputSize = DefaultInputSize
	}
	return &FrameClassifierImpl{
		config:     config,
		faces:      faces,
		leftEyes:   leftEyes,
		rightEyes:  rightEyes,
		classifier: classifier,
		logger:     logger,
	}
}

// Classify detects faces and eyes in the frame and fuses the eye labels.
// Every face is processed; a later face overwrites the labels of an earlier
// one for the side it observed. Nothing is carried over between frames.
func (c *FrameClassifierImpl) Classify(frame domain.Frame) domain.Classification {
	result := domain.Classification{State: domain.FusedUnknown}
	if frame.Image == nil {
		return result
	}

	faces, err := c.faces.Detect(frame.Image, c.config.FaceParams)
	if err != nil {
		c.logger.Debug("face detection failed",
			zap.Uint64("frame", frame.Seq),
			zap.Error(err))
		return result
	}

	var left, right *domain.EyeObservation
	for _, face := range faces {
		result.Faces = append(result.Faces, face.Box)

		if obs, ok := c.observeEye(frame.Seq, face, domain.EyeLeft, c.leftEyes); ok {
			left = &obs
			result.Eyes = append(result.Eyes, obs)
		}
		if obs, ok := c.observeEye(frame.Seq, face, domain.EyeRight, c.rightEyes); ok {
			right = &obs
			result.Eyes = append(result.Eyes, obs)
		}
	}

	result.State = Fuse(left, right)
	return result
}

// observeEye classifies the first eye candidate of one side inside a face.
func (c *FrameClassifierImpl) observeEye(
	seq uint64,
	face domain.RegionCandidate,
	side domain.EyeSide,
	detector domain.RegionDetector,
) (domain.EyeObservation, bool) {
	if face.Image == nil {
		return domain.EyeObservation{}, false
	}
	candidates, err := detector.Detect(face.Image, c.config.EyeParams)
	if err != nil {
		c.logger.Debug("eye detection failed",
			zap.Uint64("frame", seq),
			zap.String("side", string(side)),
			zap.Error(err))
		return domain.EyeObservation{}, false
	}
	if len(candidates) == 0 || candidates[0].Image == nil {
		return domain.EyeObservation{}, false
	}

	eye := candidates[0]
	state, err := c.classifier.Classify(Normalize(eye.Image, c.config.InputSize))
	if err != nil {
		c.logger.Debug("eye classification failed",
			zap.Uint64("frame", seq),
			zap.String("side", string(side)),
			zap.Error(err))
		return domain.EyeObservation{}, false
	}

	return domain.EyeObservation{Side: side, State: state, Box: eye.Box}, true
}

// Fuse combines the two per-side observations of a frame.
func Fuse(left, right *domain.EyeObservation) domain.FusedState {
	if left == nil || right == nil {
		return domain.FusedUnknown
	}
	if left.State == domain.EyeClosed && right.State == domain.EyeClosed {
		return domain.FusedBothClosed
	}
	return domain.FusedNotBothClosed
}

// Ensure FrameClassifierImpl implements domain.FrameClassifier.
var _ domain.FrameClassifier = (*FrameClassifierImpl)(nil)
