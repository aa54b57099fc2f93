package vmerror

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// LoadArtifacts registers the custom errors of every compiled contract under
// a Hardhat artifacts directory. It returns the number of artifacts loaded.
func (r *ABIRegistry) LoadArtifacts(dir string, log *slog.Logger) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		ok, err := r.loadArtifact(path)
		if err != nil {
			log.Debug("skipping artifact", "path", path, "error", err)
			return nil
		}
		if ok {
			loaded++
		}
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to walk artifacts in %s: %w", dir, err)
	}
	return loaded, nil
}

func (r *ABIRegistry) loadArtifact(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	abiJSON := gjson.GetBytes(content, "abi")
	if !abiJSON.IsArray() {
		return false, nil
	}
	if err := r.RegisterJSON(strings.NewReader(abiJSON.Raw)); err != nil {
		return false, err
	}
	return true, nil
}

// ProvideABIRegistry loads the project's Hardhat artifacts into a registry
func ProvideABIRegistry(projectRoot string, log *slog.Logger) *ABIRegistry {
	registry := NewABIRegistry()
	dir := filepath.Join(projectRoot, "artifacts")
	n, err := registry.LoadArtifacts(dir, log)
	if err != nil {
		log.Warn("failed to load contract artifacts", "dir", dir, "error", err)
	}
	log.Debug("loaded contract artifacts", "count", n, "errors", registry.Len())
	return registry
}
