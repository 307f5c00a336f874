package server

import "errors"

var (
	// ErrNilConfig is returned by Init when no configuration is given.
	ErrNilConfig = errors.New("server: nil config")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("server: invalid config")

	// ErrNoRoutingKeys is returned by AddServlet when no key is given.
	ErrNoRoutingKeys = errors.New("server: servlet needs at least one routing key")

	// ErrRoutingConflict is returned by AddServlet when a key is already
	// bound to a different servlet variant.
	ErrRoutingConflict = errors.New("server: routing key already bound")

	// ErrNilServlet is returned by AddServlet for a nil servlet.
	ErrNilServlet = errors.New("server: nil servlet")

	// ErrInvalidState is returned when a lifecycle method is called out of order.
	ErrInvalidState = errors.New("server: invalid lifecycle state")

	// ErrExecutorClosed is returned by Execute after the executor was closed.
	ErrExecutorClosed = errors.New("server: executor closed")
)
