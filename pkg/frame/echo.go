package frame

// EchoServlet replies with the request body.
type EchoServlet struct{}

func (s *EchoServlet) Execute(req *Request, resp *Response) error {
	return resp.Reply(0, req.Body())
}
