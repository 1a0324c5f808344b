package evidence

import (
	"path"

	"github.com/google/uuid"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// extensions maps evidence kinds to file extensions.
//
//nolint:gochecknoglobals // Immutable lookup table.
var extensions = map[alert.EvidenceKind]string{
	alert.EvidenceAudio: ".m4a",
	alert.EvidenceVideo: ".mp4",
	alert.EvidenceImage: ".jpg",
}

// Extension returns the file extension used for a kind.
func Extension(kind alert.EvidenceKind) string {
	if ext, ok := extensions[kind]; ok {
		return ext
	}

	return ".bin"
}

// ObjectKey returns a fresh storage key: alerts/<alertID>/<kind>/<uuid><ext>.
func ObjectKey(alertID string, kind alert.EvidenceKind) string {
	return path.Join("alerts", path.Base(alertID), string(kind), uuid.NewString()+Extension(kind))
}
