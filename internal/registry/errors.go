// Package registry loads the settlement point registry and the power plant
// facility table, the two artifacts every reconciliation needs.
package registry

import "fmt"

// Artifact names used in MissingArtifactError.
const (
	ArtifactNodeRegistry = "node registry"
	ArtifactFacilities   = "facility registry"
)

// MissingArtifactError reports a required input that is absent. Hint names the
// command that produces it.
type MissingArtifactError struct {
	Artifact string
	Path     string
	Hint     string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("registry: %s not found at %s (run: %s)", e.Artifact, e.Path, e.Hint)
}
