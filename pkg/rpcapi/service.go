package rpcapi

// Handler is implemented by pkg/daemon.Supervisor, which delegates Complete
// to pkg/handler.RequestHandler; Service adapts it
// to net/rpc's method-signature convention (one argument, one pointer
// result, an error return).
type Handler interface {
	Complete(req CompletionRequest) (CompletionResponse, error)
	Shutdown(req ShutdownRequest) (ShutdownResponse, error)
	GetStatus(req StatusRequest) (StatusResponse, error)
}

// Service is the net/rpc-registered type exposed on the daemon's Unix
// socket listener. Its three methods are the entire RPC surface.
type Service struct {
	handler Handler
}

// NewService wraps handler for net/rpc registration.
func NewService(handler Handler) *Service {
	return &Service{handler: handler}
}

// Complete serves the Complete RPC.
func (s *Service) Complete(req CompletionRequest, resp *CompletionResponse) error {
	r, err := s.handler.Complete(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

// Shutdown serves the Shutdown RPC.
func (s *Service) Shutdown(req ShutdownRequest, resp *ShutdownResponse) error {
	r, err := s.handler.Shutdown(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}

// GetStatus serves the GetStatus RPC.
func (s *Service) GetStatus(req StatusRequest, resp *StatusResponse) error {
	r, err := s.handler.GetStatus(req)
	if err != nil {
		return err
	}
	*resp = r
	return nil
}
