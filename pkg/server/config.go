package server

import (
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// validate is shared by every Config; validator caches struct metadata.
var validate = validator.New()

// AnyPort binds to a port chosen by the operating system.
const AnyPort = -1

// Config holds the transport and resource settings of one Server.
//
// Zero values are replaced by ApplyDefaults. The server copies the
// configuration during Init, so later changes to the caller's value have no
// effect on a running server.
type Config struct {
	// Protocol names the transport registered in package transport.
	// Default: "TCP"
	Protocol string `mapstructure:"protocol" yaml:"protocol" validate:"required"`

	// Host is the bind address. Default: "0.0.0.0"
	Host string `mapstructure:"host" yaml:"host" validate:"required"`

	// Port is the bind port. AnyPort asks the operating system for a free
	// port. Default: 80
	Port int `mapstructure:"port" yaml:"port" validate:"min=-1,max=65535"`

	// Charset decodes textual protocol fields such as routing keys.
	// Default: "UTF-8"
	Charset string `mapstructure:"charset" yaml:"charset" validate:"required"`

	// Backlog is the listen queue length. Default: 8192
	Backlog int `mapstructure:"backlog" yaml:"backlog" validate:"gt=0"`

	// ReadTimeoutSecond bounds each pending read. 0 disables the timeout.
	ReadTimeoutSecond int `mapstructure:"readTimeoutSecond" yaml:"readTimeoutSecond" validate:"min=0"`

	// WriteTimeoutSecond bounds each pending write. 0 disables the timeout.
	WriteTimeoutSecond int `mapstructure:"writeTimeoutSecond" yaml:"writeTimeoutSecond" validate:"min=0"`

	// KeepAlive enables TCP keep-alive probes on accepted connections when the
	// transport supports them.
	KeepAlive bool `mapstructure:"keepAlive" yaml:"keepAlive"`

	// MaxBody is the largest request body a protocol binding accepts.
	// Default: 65536
	MaxBody int `mapstructure:"maxbody" yaml:"maxbody" validate:"gt=0"`

	// BufferCapacity is the size of every pooled read buffer. Default: 8192
	BufferCapacity int `mapstructure:"bufferCapacity" yaml:"bufferCapacity" validate:"gt=0"`

	// Threads is the number of executor workers. Default: cores x 16
	Threads int `mapstructure:"threads" yaml:"threads" validate:"gt=0"`

	// BufferPoolSize caps idle pooled buffers. Default: cores x 512
	BufferPoolSize int `mapstructure:"bufferPoolSize" yaml:"bufferPoolSize" validate:"gt=0"`

	// ResponsePoolSize caps idle pooled responses. Default: cores x 256
	ResponsePoolSize int `mapstructure:"responsePoolSize" yaml:"responsePoolSize" validate:"gt=0"`

	// MaxAcceptRate limits accepted connections per second. 0 is unlimited.
	MaxAcceptRate int `mapstructure:"maxAcceptRate" yaml:"maxAcceptRate" validate:"min=0"`

	// AcceptBurst is the accept limiter burst. Default: MaxAcceptRate
	AcceptBurst int `mapstructure:"acceptBurst" yaml:"acceptBurst" validate:"min=0"`

	// StatsLogInterval is the period of the pool and counter log line.
	// 0 disables the periodic task.
	StatsLogInterval time.Duration `mapstructure:"statsLogInterval" yaml:"statsLogInterval" validate:"min=0"`
}

// ApplyDefaults fills zero values with the defaults documented on each field.
func (c *Config) ApplyDefaults() {
	cores := runtime.NumCPU()

	if c.Protocol == "" {
		c.Protocol = "TCP"
	}
	c.Protocol = strings.ToUpper(c.Protocol)
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 80
	}
	if c.Charset == "" {
		c.Charset = "UTF-8"
	}
	if c.Backlog == 0 {
		c.Backlog = 8192
	}
	if c.MaxBody == 0 {
		c.MaxBody = 65536
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 8192
	}
	if c.Threads == 0 {
		c.Threads = cores * 16
	}
	if c.BufferPoolSize == 0 {
		c.BufferPoolSize = cores * 512
	}
	if c.ResponsePoolSize == 0 {
		c.ResponsePoolSize = cores * 256
	}
	if c.AcceptBurst == 0 {
		c.AcceptBurst = c.MaxAcceptRate
	}
}

// Validate checks the configuration after ApplyDefaults. Every failure wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, formatValidationError(err))
	}

	if _, err := c.Encoding(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxAcceptRate == 0 && c.AcceptBurst > 0 {
		return fmt.Errorf("%w: acceptBurst requires maxAcceptRate", ErrInvalidConfig)
	}
	return nil
}

// Encoding resolves Charset to a text encoding.
func (c *Config) Encoding() (encoding.Encoding, error) {
	enc, err := htmlindex.Get(c.Charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", c.Charset)
	}
	return enc, nil
}

// Address returns the host:port pair passed to the acceptor.
func (c *Config) Address() string {
	port := c.Port
	if port == AnyPort {
		port = 0
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// ReadTimeout returns ReadTimeoutSecond as a duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecond) * time.Second
}

// WriteTimeout returns WriteTimeoutSecond as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSecond) * time.Second
}

// DecodeConfig builds a Config from its key/value form, for example a map
// read from a configuration file. Values are weakly typed ("8080" decodes
// into an int) and durations accept strings such as "30s".
// Defaults are applied and the result is validated.
func DecodeConfig(values map[string]any) (*Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// formatValidationError converts validator errors into readable text.
func formatValidationError(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := fieldKey(e.StructField())
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "gt":
			messages = append(messages, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

// fieldKey maps a struct field name to its configuration key.
func fieldKey(name string) string {
	if f, ok := reflect.TypeOf(Config{}).FieldByName(name); ok {
		if tag := f.Tag.Get("mapstructure"); tag != "" {
			return tag
		}
	}
	return name
}
