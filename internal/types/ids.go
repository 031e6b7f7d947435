// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// ConnID identifies one accepted connection in logs and traces.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.New().String())
}
