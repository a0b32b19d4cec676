package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// locateEnvFile resolves name against dir and then each of its parents, so
// tests running inside a package directory still see the repository .env.
// An absolute name is only checked as given.
func locateEnvFile(dir, name string) (string, error) {
	if name == "" {
		name = ".env"
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	for d := filepath.Clean(dir); ; {
		path := filepath.Join(d, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", fmt.Errorf("%s above %s: %w", name, dir, os.ErrNotExist)
		}
		d = parent
	}
}
