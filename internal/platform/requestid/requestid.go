package requestid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a 32-character hex identifier for correlating a request across logs and audit rows.
func New() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
