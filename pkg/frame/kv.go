package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittonet/pkg/server"
	"github.com/marmos91/dittonet/pkg/store"
	"github.com/mitchellh/mapstructure"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// KV operations.
const (
	OpGet    uint32 = 1
	OpPut    uint32 = 2
	OpDelete uint32 = 3
)

// KV result statuses.
const (
	StatusOK       uint32 = 0
	StatusNotFound uint32 = 1
	StatusError    uint32 = 2
)

// defaultKVTimeout bounds a single store operation.
const defaultKVTimeout = 10 * time.Second

// Command is the XDR-encoded body of a KV request.
type Command struct {
	Op    uint32
	Key   string
	Value []byte
}

// Result is the XDR-encoded body of a KV reply.
type Result struct {
	Status  uint32
	Value   []byte
	Message string
}

// KVOptions are the servlet options of a KVServlet.
type KVOptions struct {
	// Timeout bounds each store operation. Default: 10s
	Timeout time.Duration `mapstructure:"timeout"`

	// Store is passed to store.Create. Default: memory store
	Store map[string]any `mapstructure:"store"`
}

// KVServlet serves GET, PUT and DELETE commands against a store.Store.
//
// A servlet created without a store opens one in Init from its options and
// closes it in Destroy. A store passed to NewKVServlet stays owned by the
// caller.
type KVServlet struct {
	store   store.Store
	owned   bool
	timeout time.Duration
}

// NewKVServlet creates a KVServlet serving st.
func NewKVServlet(st store.Store) *KVServlet {
	return &KVServlet{store: st, timeout: defaultKVTimeout}
}

func (s *KVServlet) Init(ctx *server.Context, conf server.ServletConfig) error {
	var opts KVOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(conf.Options); err != nil {
		return fmt.Errorf("failed to decode kv servlet options: %w", err)
	}

	s.timeout = opts.Timeout
	if s.timeout <= 0 {
		s.timeout = defaultKVTimeout
	}

	if s.store != nil {
		return nil
	}
	st, err := store.Create(context.Background(), opts.Store)
	if err != nil {
		return fmt.Errorf("kv servlet: %w", err)
	}
	s.store = st
	s.owned = true
	ctx.Logger().Debug("KV servlet opened its store")
	return nil
}

func (s *KVServlet) Destroy(ctx *server.Context, _ server.ServletConfig) {
	if !s.owned || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		ctx.Logger().Warn("Failed to close KV store: %v", err)
	}
	s.store = nil
	s.owned = false
}

// Execute decodes the command, runs it and replies with a Result. A body
// that is not a valid Command is an error and closes the connection.
func (s *KVServlet) Execute(req *Request, resp *Response) error {
	if s.store == nil {
		return fmt.Errorf("kv servlet: no store")
	}

	var cmd Command
	if _, err := xdr.Unmarshal(bytes.NewReader(req.Body()), &cmd); err != nil {
		return fmt.Errorf("decode kv command: %w", err)
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = defaultKVTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := s.run(ctx, cmd)
	if result.Status == StatusError {
		req.Context().Logger().Debug("KV %d %q failed: %s", cmd.Op, cmd.Key, result.Message)
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &result); err != nil {
		return fmt.Errorf("encode kv result: %w", err)
	}
	return resp.Reply(0, buf.Bytes())
}

func (s *KVServlet) run(ctx context.Context, cmd Command) Result {
	var value []byte
	var err error

	switch cmd.Op {
	case OpGet:
		value, err = s.store.Get(ctx, cmd.Key)
	case OpPut:
		err = s.store.Put(ctx, cmd.Key, cmd.Value)
	case OpDelete:
		err = s.store.Delete(ctx, cmd.Key)
	default:
		return Result{Status: StatusError, Message: fmt.Sprintf("unknown op %d", cmd.Op)}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return Result{Status: StatusNotFound, Message: err.Error()}
	case err != nil:
		return Result{Status: StatusError, Message: err.Error()}
	}
	return Result{Status: StatusOK, Value: value}
}
