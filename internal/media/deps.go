package media

import (
	"fmt"
	"os/exec"
)

// Dependency is the lookup result for one external executable.
type Dependency struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// DependencyStatus resolves the configured executables on PATH.
func DependencyStatus(cfg Config) []Dependency {
	names := []string{cfg.YtDlpPath, cfg.FFmpegPath, cfg.FFprobePath}
	deps := make([]Dependency, 0, len(names))
	for _, name := range names {
		d := Dependency{Name: name}
		if path, err := exec.LookPath(name); err == nil {
			d.Path = path
			d.Found = true
		}
		deps = append(deps, d)
	}
	return deps
}

// CheckDependencies returns an error naming the first missing executable.
func CheckDependencies(cfg Config) error {
	for _, d := range DependencyStatus(cfg) {
		if !d.Found {
			return fmt.Errorf("missing dependency: %s is not installed or not on PATH", d.Name)
		}
	}
	return nil
}
