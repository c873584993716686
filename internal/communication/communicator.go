package communication

import "context"

// SandCode is the transport-neutral outcome of a request.
type SandCode string

const (
	CodeOK          SandCode = "OK"
	CodeBadRequest  SandCode = "BAD_REQUEST"
	CodeNotFound    SandCode = "NOT_FOUND"
	CodeInternal    SandCode = "INTERNAL"
	CodeUnavailable SandCode = "UNAVAILABLE"
)

type Message struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Response struct {
	Code SandCode
	Body []byte
}

// Communicator is the Transport between the gateway and storage nodes. Send
// returns an error only when the request could not be delivered or no
// response was received; application-level failures come back as a
// Response with a non-OK code.
type Communicator interface {
	Start(handler MessageHandler) error
	Stop() error
	Send(ctx context.Context, to string, msg Message) (*Response, error)
	Address() string
}
