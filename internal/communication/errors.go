package communication

import "errors"

var (
	// Server startup/shutdown errors
	ErrServerStartFailed = errors.New("failed to start server")
	ErrServerStopFailed  = errors.New("failed to stop server")

	// Client connection errors
	ErrClientCreateFailed = errors.New("failed to create client")

	// Message handling errors
	ErrHandlerNotSet        = errors.New("message handler not set")
	ErrMessageSendFailed    = errors.New("failed to send message")
	ErrMessageHandlerFailed = errors.New("message handler failed")
	ErrUnsupportedMessage   = errors.New("unsupported message type")
	ErrInvalidPayload       = errors.New("invalid payload for message type")

	// HTTP specific errors
	ErrHTTPRequestCreateFailed = errors.New("failed to create HTTP request")
	ErrHTTPRequestSendFailed   = errors.New("failed to send HTTP request")
	ErrHTTPResponseReadFailed  = errors.New("failed to read HTTP response")

	// GRPC specific errors
	ErrGRPCListenFailed = errors.New("failed to listen on address")
)
