package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/force-h2020/wfmanager/errors"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile reads a workflow document from path. Files ending in .yaml or
// .yml are converted to JSON before decoding.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "workflow", "LoadFile", "read file")
	}

	if isYAML(path) {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, invalid("parse yaml", err)
		}
		if data, err = json.Marshal(tree); err != nil {
			return nil, invalid("convert yaml", err)
		}
	}

	return Decode(data)
}

// SaveFile writes wf to path in the format implied by its extension.
func SaveFile(path string, wf *Workflow) error {
	data, err := Encode(wf)
	if err != nil {
		return err
	}

	if isYAML(path) {
		var tree any
		if err := json.Unmarshal(data, &tree); err != nil {
			return errors.WrapFatal(err, "workflow", "SaveFile", "convert to yaml")
		}
		if data, err = yaml.Marshal(tree); err != nil {
			return errors.WrapFatal(err, "workflow", "SaveFile", "marshal yaml")
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "workflow", "SaveFile", "write file")
	}
	return nil
}
