package server

// Server is a long-running process component. Start returns once the
// server is accepting requests.
type Server interface {
	Start() error
	Stop() error
	Address() string
}
