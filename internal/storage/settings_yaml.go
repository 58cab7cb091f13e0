package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

// YAMLStore persists string values as a flat YAML mapping.
type YAMLStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenYAML loads the settings file for appName from the user config directory.
// A missing file yields an empty store.
func OpenYAML(appName string) (*YAMLStore, error) {
	configPath, err := ResolveConfigPath(appName, settingsFileName)
	if err != nil {
		return nil, err
	}
	return OpenYAMLFile(configPath)
}

// OpenYAMLFile loads a settings file from an explicit path.
func OpenYAMLFile(configPath string) (*YAMLStore, error) {
	store := &YAMLStore{path: configPath, values: map[string]string{}}

	rawData, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return store, fmt.Errorf("read settings file: %w", err)
	}

	var fileData map[string]string
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return store, fmt.Errorf("parse settings yaml: %w", err)
	}
	for key, value := range fileData {
		store.values[key] = value
	}
	return store, nil
}

// Path returns the backing file path.
func (store *YAMLStore) Path() string {
	return store.path
}

// Get returns the stored value for key.
func (store *YAMLStore) Get(key string) (string, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	value, ok := store.values[key]
	return value, ok
}

// Set stores value and rewrites the file.
func (store *YAMLStore) Set(key, value string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.values[key] = value
	return store.saveLocked()
}

// Keys returns the stored keys in sorted order.
func (store *YAMLStore) Keys() []string {
	store.mu.Lock()
	defer store.mu.Unlock()
	keys := make([]string, 0, len(store.values))
	for key := range store.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (store *YAMLStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	serialized, err := yaml.Marshal(store.values)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := os.WriteFile(store.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// ResolveConfigPath returns <user config dir>/<appName>/<fileName>.
func ResolveConfigPath(appName, fileName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, fileName), nil
}
