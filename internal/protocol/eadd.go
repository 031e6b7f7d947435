package protocol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/skyd/internal/status"
)

// DataPair is one key/value attached to an event, encoded as a two-element array.
type DataPair struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Value any
}

// AddEventRequest is the decoded body of an EADD message. Action is nil when
// the event carries no action.
type AddEventRequest struct {
	Database  string     `cbor:"database"`
	Table     string     `cbor:"table"`
	ObjectID  int64      `cbor:"object_id"`
	Timestamp int64      `cbor:"timestamp,omitempty"`
	Action    *string    `cbor:"action,omitempty"`
	Data      []DataPair `cbor:"data,omitempty"`
}

var addEventPool = sync.Pool{
	New: func() any { return new(AddEventRequest) },
}

// AcquireAddEventRequest returns an empty request from the pool. Callers must
// call Release exactly once when done with it.
func AcquireAddEventRequest() *AddEventRequest {
	return addEventPool.Get().(*AddEventRequest)
}

func (r *AddEventRequest) Release() {
	clear(r.Data)
	*r = AddEventRequest{Data: r.Data[:0]}
	addEventPool.Put(r)
}

// DecodeAddEvent decodes body into r. The body must hold exactly one CBOR
// item; trailing bytes are an error.
func DecodeAddEvent(body []byte, r *AddEventRequest) error {
	if err := decMode.Unmarshal(body, r); err != nil {
		return fmt.Errorf("decode EADD body: %w", err)
	}
	return nil
}

func EncodeAddEvent(r *AddEventRequest) ([]byte, error) {
	b, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode EADD body: %w", err)
	}
	return b, nil
}

// Validate checks the fields every EADD request must carry.
func (r *AddEventRequest) Validate() error {
	if r.Database == "" {
		return status.New(status.InvalidRequest, "database name is required")
	}
	if err := ValidName(r.Database); err != nil {
		return status.Wrap(status.InvalidRequest, "invalid database name", err)
	}
	if r.Table == "" {
		return status.New(status.InvalidRequest, "table name is required")
	}
	if err := ValidName(r.Table); err != nil {
		return status.Wrap(status.InvalidRequest, "invalid table name", err)
	}
	if r.ObjectID == 0 {
		return status.New(status.InvalidRequest, "object id is required")
	}
	if r.Action != nil && *r.Action == "" {
		return status.New(status.InvalidRequest, "action name must not be empty")
	}
	for i, p := range r.Data {
		if p.Key == "" {
			return status.Errorf(status.InvalidRequest, "data key %d is empty", i)
		}
	}
	return nil
}

// ValidName reports whether name can be used as a single path component.
func ValidName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case name == "." || name == "..":
		return fmt.Errorf("reserved name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("name %q contains a path separator", name)
	}
	return nil
}
