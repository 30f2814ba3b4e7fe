package protocol

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Protocol versioning constants
const (
	CurrentVersion       = "1.0.0"
	MinCompatibleVersion = "1.0.0"
)

// VersionHeader carries the client's protocol version on HTTP requests
const VersionHeader = "X-Client-Version"

// VersionGate decides whether a client's protocol version is accepted
type VersionGate struct {
	current *version.Version
	min     *version.Version
}

// NewVersionGate creates a gate accepting versions at or above minVersion
func NewVersionGate(minVersion string) (*VersionGate, error) {
	current, err := version.NewVersion(CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid current version: %w", err)
	}

	if minVersion == "" {
		minVersion = MinCompatibleVersion
	}
	min, err := version.NewVersion(minVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid min version: %w", err)
	}
	if current.LessThan(min) {
		return nil, fmt.Errorf("min version %s is newer than current version %s", min, current)
	}

	return &VersionGate{current: current, min: min}, nil
}

// IsCompatible checks if a given version is compatible with the current protocol
func (g *VersionGate) IsCompatible(clientVersion string) (bool, error) {
	v, err := version.NewVersion(clientVersion)
	if err != nil {
		return false, fmt.Errorf("invalid version string: %w", err)
	}

	return !v.LessThan(g.min), nil
}

// Min returns the minimum accepted version
func (g *VersionGate) Min() string {
	return g.min.String()
}
