package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxConfigSize = 1 << 20

var configExtensions = []string{".yaml", ".yml", ".json"}

// checkConfigFile rejects paths viper cannot parse and files that are not
// small regular files.
func checkConfigFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	supported := false
	for _, e := range configExtensions {
		if ext == e {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported config file type %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	return nil
}
