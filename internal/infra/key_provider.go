package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

const (
	historyKeyFile = "history.key"
	historyKeySize = 32 // raw SQLCipher key, 256 bits
)

// DataDirKeys keeps the history key as a hex file next to the history database.
type DataDirKeys struct {
	dataDir string
}

// NewDataDirKeys creates a key source rooted at dataDir.
func NewDataDirKeys(dataDir string) *DataDirKeys {
	return &DataDirKeys{dataDir: dataDir}
}

// Path is the key file location.
func (k *DataDirKeys) Path() string {
	return filepath.Join(k.dataDir, historyKeyFile)
}

// HasHistoryKey reports whether a key file is present.
func (k *DataDirKeys) HasHistoryKey() bool {
	_, err := os.Stat(k.Path())
	return err == nil
}

// HistoryKey returns the stored key. The first call on an empty data dir
// creates one; a key file that other users can read is refused.
func (k *DataDirKeys) HistoryKey() ([]byte, error) {
	key, err := k.read()
	if errors.Is(err, fs.ErrNotExist) {
		return k.create()
	}
	return key, err
}

func (k *DataDirKeys) read() ([]byte, error) {
	path := k.Path()
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("history key %s has mode %o, want 0600", path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("history key %s is not hex: %w", path, err)
	}
	if len(key) != historyKeySize {
		return nil, fmt.Errorf("history key %s is %d bytes, want %d", path, len(key), historyKeySize)
	}
	return key, nil
}

// create writes a fresh key with O_EXCL. Losing the race to another
// process falls back to reading the winner's key.
func (k *DataDirKeys) create() ([]byte, error) {
	if err := os.MkdirAll(k.dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	key, err := NewHistoryKey()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(k.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return k.read()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create history key: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		os.Remove(k.Path())
		return nil, fmt.Errorf("failed to write history key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write history key: %w", err)
	}
	return key, nil
}

// NewHistoryKey returns random key material for a history database.
func NewHistoryKey() ([]byte, error) {
	key := make([]byte, historyKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate history key: %w", err)
	}
	return key, nil
}

// OpenHistory opens the history store in dataDir with the key from keys.
func OpenHistory(dataDir string, keys domain.KeyProvider) (*HistoryStore, error) {
	key, err := keys.HistoryKey()
	if err != nil {
		return nil, err
	}
	return NewHistoryStore(dataDir, key)
}

var _ domain.KeyProvider = (*DataDirKeys)(nil)
