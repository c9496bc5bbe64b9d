package compile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CompiledFileSuffix is the extension of serialized class files.
const CompiledFileSuffix = ".starc"

// CompiledFilePath returns the slash path of a class file relative to an
// output directory.
func CompiledFilePath(name string) string {
	return ClassPath(name) + CompiledFileSuffix
}

// WriteArtifacts writes every artifact as a class file under dir and returns
// the filenames written.
func WriteArtifacts(dir string, artifacts Artifacts) ([]string, error) {
	var filenames []string
	for _, name := range artifacts.Names() {
		filename := filepath.Join(dir, filepath.FromSlash(CompiledFilePath(name)))
		if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
			return filenames, fmt.Errorf("mkdir: %w", err)
		}
		if err := os.WriteFile(filename, artifacts[name], 0o644); err != nil {
			return filenames, fmt.Errorf("write: %w", err)
		}
		filenames = append(filenames, filename)
	}
	return filenames, nil
}

// ReadArtifact reads the class file for name from under dir.
func ReadArtifact(dir, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dir, filepath.FromSlash(CompiledFilePath(name))))
}

// WriteJSONFile writes v as indented JSON.
func WriteJSONFile(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// ReadDetails reads failure details previously written with WriteJSONFile.
func ReadDetails(filename string) (*Details, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	var details Details
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &details, nil
}
