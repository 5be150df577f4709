package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shibukawa/configdir"
	"github.com/spf13/afero"
)

const vendorName = "racore"

var (
	appName = "racore"
	baseDir string
	fs      afero.Fs = afero.NewOsFs()
)

// Init sets the application data directory name. Must be called before
// any storage operations.
func Init(dataDirName string) {
	appName = dataDirName
	baseDir = ""
}

// SetBaseDir overrides the per-user config folder, e.g. from a command line flag.
func SetBaseDir(dir string) {
	baseDir = dir
}

// SetFs replaces the filesystem used for all reads and writes.
func SetFs(f afero.Fs) {
	fs = f
}

const (
	configFile  = "config.json"
	historyFile = "history"
)

// GetBaseDir returns the base directory for application data.
func GetBaseDir() (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	folders := configdir.New(vendorName, appName).QueryFolders(configdir.Global)
	if len(folders) == 0 {
		return "", fmt.Errorf("no config folder for %s", appName)
	}
	return folders[0].Path, nil
}

// GetConfigPath returns the full path to config.json
func GetConfigPath() (string, error) {
	dir, err := GetBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// GetHistoryPath returns the console history file, or "" when the cache
// folder cannot be created.
func GetHistoryPath() string {
	if baseDir != "" {
		return filepath.Join(baseDir, historyFile)
	}
	cache := configdir.New(vendorName, appName).QueryCacheFolder()
	if err := cache.MkdirAll(); err != nil {
		return ""
	}
	return filepath.Join(cache.Path, historyFile)
}

// AtomicWriteJSON writes data to a JSON file atomically.
// It writes to a temporary file first, then renames to the target path.
func AtomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tempFile := path + ".tmp"
	if err := afero.WriteFile(fs, tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := fs.Rename(tempFile, path); err != nil {
		fs.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadJSON reads and unmarshals a JSON file
func ReadJSON(path string, data interface{}) error {
	jsonData, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(jsonData, data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

func exists(path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
