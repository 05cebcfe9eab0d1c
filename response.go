package mimewatch

import (
	"github.com/aknrt/mimewatch/internal/wire"
)

// Response represents a reply frame sent back to the MTA.
type Response struct {
	code wire.Code
	data []byte
}

// Message returns the wire message for this response.
func (r *Response) Message() *wire.Message {
	return &wire.Message{Code: r.code, Data: r.data}
}

func newResponse(code wire.Code, data []byte) *Response {
	return &Response{code: code, data: data}
}

// The only responses this filter emits. It never issues mutation actions.
var (
	// RespContinue tells the MTA to proceed with the next event.
	RespContinue = &Response{code: wire.CodeContinue}
	// RespAccept tells the MTA to accept the message.
	RespAccept = &Response{code: wire.CodeAccept}
)
