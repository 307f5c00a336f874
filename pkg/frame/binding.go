package frame

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittonet/pkg/server"
)

// Name is the binding name used in logs and metric labels.
const Name = "FRAME"

type (
	// Registry routes FRAME keys to servlets.
	Registry = server.Registry[string, *Request, *Response]

	// Server is a FRAME server.
	Server = server.Server[string, *Request, *Response]

	// Servlet handles FRAME requests.
	Servlet = server.Servlet[*Request, *Response]
)

// Binding plugs FRAME into the generic server.
type Binding struct{}

func (Binding) Name() string {
	return Name
}

func (Binding) NewResponse(ctx *server.Context, release func(*Response) bool) *Response {
	return NewResponse(ctx, release)
}

// NewRegistry creates an empty FRAME registry.
func NewRegistry() *Registry {
	return server.NewRegistry[string, *Request, *Response]()
}

// NewServer creates an unconfigured FRAME server dispatching to registry.
func NewServer(registry *Registry) *Server {
	return server.New[string, *Request, *Response](registry, Binding{})
}

// NewServlet creates a servlet by type name: "echo" or "kv". A kv servlet
// opens its store from its options in Init.
func NewServlet(kind string) (Servlet, error) {
	switch strings.ToLower(kind) {
	case "echo":
		return &EchoServlet{}, nil
	case "kv":
		return &KVServlet{}, nil
	default:
		return nil, fmt.Errorf("unknown servlet type: %q (supported: echo, kv)", kind)
	}
}
