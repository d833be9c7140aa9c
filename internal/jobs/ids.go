package jobs

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Davygupta47/notebook/internal/artifact"
)

const (
	idLength    = 12
	draftSuffix = "_draft"
)

// NewID returns a fresh job identifier: 12 lowercase hex characters drawn
// from a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}

// DraftID returns the artifact key for the draft of job id.
func DraftID(id string) string {
	return id + draftSuffix
}

// IsDraftID reports whether id names a draft artifact.
func IsDraftID(id string) bool {
	return strings.HasSuffix(id, draftSuffix) && len(id) > len(draftSuffix)
}

// ValidID reports whether id is safe to use as an artifact key.
func ValidID(id string) bool {
	return artifact.ValidKey(id)
}
