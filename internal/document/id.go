package document

import (
	"github.com/google/uuid"
)

// NewID generates a fresh block id of the form "<type>-<uuid>".
func NewID(blockType string) string {
	if blockType == "" {
		return uuid.NewString()
	}
	return blockType + "-" + uuid.NewString()
}
