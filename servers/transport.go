package servers

import (
	"fmt"

	"github.com/AnishMulay/ravenfs/internal/communication"
	grpccomm "github.com/AnishMulay/ravenfs/internal/communication/grpc"
	httpcomm "github.com/AnishMulay/ravenfs/internal/communication/http"
	"github.com/AnishMulay/ravenfs/internal/config"
	"github.com/AnishMulay/ravenfs/internal/log_service"
)

// NewCommunicator builds the communicator for transport, listening on addr
// once started.
func NewCommunicator(transport, addr string, ls log_service.LogService) (communication.Communicator, error) {
	switch transport {
	case config.TransportHTTP:
		return httpcomm.NewHTTPCommunicator(addr, ls), nil
	case config.TransportGRPC:
		return grpccomm.NewGRPCCommunicator(addr, ls), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
