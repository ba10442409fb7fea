package util

import (
	"strings"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// NewUUID returns a plain RFC 4122 UUID, matching the id format the
// database defaults use for entity rows.
func NewUUID() string {
	return uuid.NewString()
}
