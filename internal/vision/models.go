package vision

import (
	"errors"
	"fmt"
	"os"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// ModelFiles locates the assets loaded at startup.
type ModelFiles struct {
	FaceCascade     string
	LeftEyeCascade  string
	RightEyeCascade string
	EyeClassifier   string
}

// Models holds the loaded detectors and classifier.
type Models struct {
	Faces     *Cascade
	LeftEyes  *Cascade
	RightEyes *Cascade
	Eyes      *EyeNet
}

// CheckModelFiles reports every asset that is missing or unreadable.
func CheckModelFiles(files ModelFiles) error {
	var errs []error
	for _, path := range []string{files.FaceCascade, files.LeftEyeCascade, files.RightEyeCascade, files.EyeClassifier} {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%w: %v", domain.ErrAssetLoad, err))
		case info.IsDir():
			errs = append(errs, fmt.Errorf("%w: %s is a directory", domain.ErrAssetLoad, path))
		}
	}
	return errors.Join(errs...)
}

// LoadModels loads all assets; on any failure the ones already loaded are freed.
func LoadModels(files ModelFiles) (*Models, error) {
	if err := CheckModelFiles(files); err != nil {
		return nil, err
	}

	m := &Models{}
	var err error
	if m.Faces, err = LoadCascade(files.FaceCascade); err != nil {
		return nil, err
	}
	if m.LeftEyes, err = LoadCascade(files.LeftEyeCascade); err != nil {
		m.Close()
		return nil, err
	}
	if m.RightEyes, err = LoadCascade(files.RightEyeCascade); err != nil {
		m.Close()
		return nil, err
	}
	if m.Eyes, err = LoadEyeNet(files.EyeClassifier); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Close frees every loaded asset.
func (m *Models) Close() error {
	var errs []error
	for _, c := range []*Cascade{m.Faces, m.LeftEyes, m.RightEyes} {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	if m.Eyes != nil {
		errs = append(errs, m.Eyes.Close())
	}
	return errors.Join(errs...)
}
