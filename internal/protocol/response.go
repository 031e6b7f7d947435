package protocol

import (
	"fmt"
	"io"

	"github.com/user/skyd/internal/status"
)

// Response is the body of every response frame.
type Response struct {
	Status  status.Code `cbor:"status"`
	Message string      `cbor:"message,omitempty"`
}

// WriteResponse answers a request of type reqType.
func WriteResponse(w io.Writer, reqType MessageType, resp *Response) error {
	body, err := encMode.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return WriteMessage(w, reqType|ResponseFlag, body)
}

// ReadResponse reads one response frame and returns the request type it answers.
func ReadResponse(r io.Reader, maxBody uint32) (MessageType, *Response, error) {
	msg, err := ReadMessage(r, maxBody)
	if err != nil {
		return 0, nil, err
	}
	if !msg.Header.Type.IsResponse() {
		return 0, nil, fmt.Errorf("expected a response frame, got %s", msg.Header.Type)
	}
	var resp Response
	if err := decMode.Unmarshal(msg.BodyBytes(), &resp); err != nil {
		return 0, nil, fmt.Errorf("decode response: %w", err)
	}
	return msg.Header.Type &^ ResponseFlag, &resp, nil
}

// Err returns nil for an OK response and a *status.Error carrying the
// response's code and message otherwise.
func (r *Response) Err() error {
	if r.Status == status.OK {
		return nil
	}
	return status.New(r.Status, r.Message)
}
