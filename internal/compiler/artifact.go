package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
)

const (
	// BaseClass is the common base every compiled class extends
	BaseClass = "Record"

	// ArtifactExt is the file extension of compiled artifacts in the build directory
	ArtifactExt = ".json"
)

// Method is one wrapped method of a compiled class
type Method struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Source string `json:"source"`
}

// Artifact is the compiled form of one class.
// It is a pure function of the class's fragments and relation descriptor.
type Artifact struct {
	Class   string              `json:"class"`
	Extends string              `json:"extends"`
	Methods []Method            `json:"methods"`
	Mapper  models.MapperConfig `json:"mapper"`
}

// Method returns the method named name
func (a *Artifact) Method(name string) (Method, bool) {
	for _, m := range a.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Encode serializes the artifact. Equal artifacts encode to identical bytes.
func (a *Artifact) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("failed to encode artifact %s: %w", a.Class, err)
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded artifact
func Decode(raw []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &a, nil
}

// ArtifactPath is where the artifact of className lives below buildDir
func ArtifactPath(buildDir, className string) string {
	return filepath.Join(buildDir, className+ArtifactExt)
}

// ReadArtifact loads the artifact of className from buildDir
func ReadArtifact(buildDir, className string) (*Artifact, error) {
	raw, err := os.ReadFile(ArtifactPath(buildDir, className))
	if err != nil {
		return nil, types.NewError(types.ErrArtifactNotFound, className, err)
	}
	a, err := Decode(raw)
	if err != nil {
		return nil, types.NewError(types.ErrArtifactNotFound, className, err)
	}
	return a, nil
}

// writeFileAtomic replaces path with data so readers never observe a partial file
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
