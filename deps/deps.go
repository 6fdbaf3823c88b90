// Package deps tracks the optional external capabilities the pipeline
// can use, chiefly the ONNX Runtime library behind subject detection.
// Each dependency knows how to check for itself and, when possible, how
// to download itself.
package deps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/downloads"
)

// Dependency represents an external dependency that can be checked and
// downloaded.
type Dependency struct {
	ID            string
	Name          string
	Description   string
	TargetDir     string // Base directory for installation
	LatestVersion string
	DownloadURL   string

	// Optional indicates the pipeline degrades gracefully without it.
	Optional bool
	// ManualOnly indicates the dependency must be installed by hand;
	// InstallURL is where.
	ManualOnly bool
	InstallURL string

	// Check verifies the dependency exists and returns its version.
	Check func(ctx context.Context) (exists bool, version string, err error)

	// DownloadFn downloads and installs the dependency.
	DownloadFn func(ctx context.Context, progress downloads.ProgressCallback) error
}

// DependencyRegistry stores all registered dependencies.
type DependencyRegistry map[string]*Dependency

var (
	registry DependencyRegistry = make(DependencyRegistry)
	mu       sync.RWMutex
)

// Register adds a dependency to the global registry.
func Register(dep *Dependency) {
	mu.Lock()
	defer mu.Unlock()
	registry[dep.ID] = dep
}

// Get retrieves a dependency by its ID.
func Get(id string) (*Dependency, bool) {
	mu.RLock()
	defer mu.RUnlock()

	dep, ok := registry[id]
	return dep, ok
}

// GetAll returns all registered dependencies.
func GetAll() []*Dependency {
	mu.RLock()
	defer mu.RUnlock()

	deps := make([]*Dependency, 0, len(registry))
	for _, d := range registry {
		deps = append(deps, d)
	}
	return deps
}

// GetRequired returns all non-optional dependencies.
func GetRequired() []*Dependency {
	mu.RLock()
	defer mu.RUnlock()

	deps := make([]*Dependency, 0)
	for _, d := range registry {
		if !d.Optional {
			deps = append(deps, d)
		}
	}
	return deps
}

// GetOptional returns all optional dependencies.
func GetOptional() []*Dependency {
	mu.RLock()
	defer mu.RUnlock()

	deps := make([]*Dependency, 0)
	for _, d := range registry {
		if d.Optional {
			deps = append(deps, d)
		}
	}
	return deps
}

// EnsureAvailable checks that a dependency is installed and returns an
// error naming the fix when it is not.
func EnsureAvailable(ctx context.Context, depID string) error {
	dep, ok := Get(depID)
	if !ok {
		return fmt.Errorf("unknown dependency: %s", depID)
	}

	exists, _, err := dep.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to check dependency %s: %w", depID, err)
	}
	if !exists {
		if dep.ManualOnly && dep.InstallURL != "" {
			return fmt.Errorf("dependency %s is not installed; install it from %s", dep.Name, dep.InstallURL)
		}
		return fmt.Errorf("dependency %s is not installed", dep.Name)
	}
	return nil
}

// CheckAnyMissing reports whether any required dependency is missing.
func CheckAnyMissing(ctx context.Context) bool {
	for _, dep := range GetRequired() {
		exists, _, err := dep.Check(ctx)
		if err != nil || !exists {
			return true
		}
	}
	return false
}

// Status is one dependency's availability for the capability report.
type Status struct {
	ID        string
	Name      string
	Available bool
	Version   string
	Detail    string
}

// Report checks every registered dependency and returns their statuses
// sorted by ID.
func Report(ctx context.Context) []Status {
	deps := GetAll()
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })

	out := make([]Status, 0, len(deps))
	for _, dep := range deps {
		s := Status{ID: dep.ID, Name: dep.Name}
		exists, version, err := dep.Check(ctx)
		switch {
		case err != nil:
			s.Detail = err.Error()
		case exists:
			s.Available = true
			s.Version = version
		case dep.InstallURL != "":
			s.Detail = "install from " + dep.InstallURL
		default:
			s.Detail = "not installed"
		}
		out = append(out, s)
	}
	return out
}
