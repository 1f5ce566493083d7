package tunnel

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDeviceInfoStore persists known-device records as one JSON file per
// device under a directory. Store keys are hex, so they are safe as file
// names.
type FileDeviceInfoStore struct {
	dir string
}

// NewFileDeviceInfoStore creates the directory if needed.
func NewFileDeviceInfoStore(dir string) (*FileDeviceInfoStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating device store directory: %w", err)
	}
	return &FileDeviceInfoStore{dir: dir}, nil
}

func (s *FileDeviceInfoStore) path(id KnownDeviceID) (string, error) {
	if _, err := hex.DecodeString(id); err != nil || id == "" {
		return "", fmt.Errorf("invalid device id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// PutKnownDevice implements KnownDeviceStore.
func (s *FileDeviceInfoStore) PutKnownDevice(ctx context.Context, id KnownDeviceID, info *KnownDeviceInfo) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling device record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing device record: %w", err)
	}
	return os.Rename(tmp, path)
}

// DeleteKnownDevice implements KnownDeviceStore.
func (s *FileDeviceInfoStore) DeleteKnownDevice(ctx context.Context, id KnownDeviceID) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting device record: %w", err)
	}
	return nil
}

// ListAll loads every stored record.
func (s *FileDeviceInfoStore) ListAll() (map[KnownDeviceID]KnownDeviceInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading device store directory: %w", err)
	}
	out := make(map[KnownDeviceID]KnownDeviceInfo)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading device record %s: %w", name, err)
		}
		var info KnownDeviceInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("parsing device record %s: %w", name, err)
		}
		out[strings.TrimSuffix(name, ".json")] = info
	}
	return out, nil
}
