// Package transport moves newline-delimited "force,displacement" records
// between a producer and the ingest loop over serial, UDP, NATS, websocket
// or an in-process pipe.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
)

// Source yields raw record bytes. A Read that hits the read timeout
// returns (0, nil). io.EOF marks the end of the stream.
type Source interface {
	io.Reader
	SetReadTimeout(d time.Duration) error
	io.Closer
}

// Sink accepts whole records, one per Write.
type Sink interface {
	io.Writer
	io.Closer
}

// Kind selects a transport.
type Kind string

// Supported transports
const (
	KindSerial    Kind = "serial"
	KindUDP       Kind = "udp"
	KindNATS      Kind = "nats"
	KindWebSocket Kind = "websocket"
	KindLoopback  Kind = "loopback"
)

// Kinds lists every supported transport.
var Kinds = []Kind{KindSerial, KindUDP, KindNATS, KindWebSocket, KindLoopback}

// Valid reports whether k names a supported transport.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// SerialConfig configures a serial port.
type SerialConfig struct {
	Port string `json:"port" yaml:"port"`
	Baud int    `json:"baud" yaml:"baud"`
}

// UDPConfig configures the UDP transport. Sources bind Bind:Port, sinks
// send to Remote.
type UDPConfig struct {
	Bind   string `json:"bind" yaml:"bind"`
	Port   int    `json:"port" yaml:"port"`
	Remote string `json:"remote" yaml:"remote"`
}

// NATSConfig configures the NATS transport.
// Zero durations keep the client defaults.
type NATSConfig struct {
	URLs    []string `json:"urls" yaml:"urls"`
	Subject string   `json:"subject" yaml:"subject"`

	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	PingInterval  time.Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	MaxBackoff    time.Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`
}

// WebSocketConfig configures the websocket transport. Sinks serve Listen
// and push records to every connected client, sources dial URL.
type WebSocketConfig struct {
	URL    string `json:"url" yaml:"url"`
	Listen string `json:"listen" yaml:"listen"`
	Path   string `json:"path" yaml:"path"`
}

// Config selects and configures a transport.
type Config struct {
	Kind      Kind            `json:"kind" yaml:"kind"`
	Serial    SerialConfig    `json:"serial" yaml:"serial"`
	UDP       UDPConfig       `json:"udp" yaml:"udp"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
}

// DefaultConfig returns a loopback transport with usable settings for every
// other kind.
func DefaultConfig() Config {
	return Config{
		Kind:   KindLoopback,
		Serial: SerialConfig{Port: "/dev/ttyUSB0", Baud: 9600},
		UDP:    UDPConfig{Bind: "0.0.0.0", Port: 14560, Remote: "127.0.0.1:14560"},
		NATS: NATSConfig{
			URLs:    []string{"nats://127.0.0.1:4222"},
			Subject: "tensile.records",
		},
		WebSocket: WebSocketConfig{
			URL:    "ws://127.0.0.1:8090/records",
			Listen: ":8090",
			Path:   "/records",
		},
	}
}

// Validate checks the settings of the selected kind only.
func (c Config) Validate() error {
	switch c.Kind {
	case KindSerial:
		if c.Serial.Port == "" {
			return errors.Invalidf("transport.Config", "Validate", "serial port is required")
		}
		if c.Serial.Baud <= 0 {
			return errors.Invalidf("transport.Config", "Validate", "serial baud must be positive, got %d", c.Serial.Baud)
		}
	case KindUDP:
		if c.UDP.Port < 1 || c.UDP.Port > 65535 {
			return errors.Invalidf("transport.Config", "Validate", "udp port %d out of range", c.UDP.Port)
		}
	case KindNATS:
		if len(c.NATS.URLs) == 0 {
			return errors.Invalidf("transport.Config", "Validate", "nats urls are required")
		}
		if c.NATS.Subject == "" {
			return errors.Invalidf("transport.Config", "Validate", "nats subject is required")
		}
		if c.NATS.ReconnectWait < 0 || c.NATS.PingInterval < 0 || c.NATS.MaxBackoff < 0 || c.NATS.DrainTimeout < 0 {
			return errors.Invalidf("transport.Config", "Validate", "nats durations cannot be negative")
		}
	case KindWebSocket:
		if c.WebSocket.URL == "" && c.WebSocket.Listen == "" {
			return errors.Invalidf("transport.Config", "Validate", "websocket url or listen address is required")
		}
	case KindLoopback:
	default:
		return errors.Invalidf("transport.Config", "Validate", "unknown transport kind %q", c.Kind)
	}
	return nil
}

// Deps holds runtime dependencies for opening transports.
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
	// Pipe backs the loopback kind. Both ends must share it.
	Pipe *Pipe
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default().With("component", "transport")
}

// Open opens the receiving end of the configured transport.
func Open(ctx context.Context, cfg Config, deps Deps) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.logger().With("transport", string(cfg.Kind))

	switch cfg.Kind {
	case KindSerial:
		return OpenSerial(ctx, cfg.Serial, logger)
	case KindUDP:
		src, err := ListenUDP(ctx, cfg.UDP, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindNATS:
		src, err := openNATSSource(ctx, cfg.NATS, deps, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindWebSocket:
		if cfg.WebSocket.URL == "" {
			return nil, errors.Invalidf("transport", "Open", "websocket source needs a url")
		}
		src, err := DialWebSocket(ctx, cfg.WebSocket.URL, deps.Registry, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		if deps.Pipe == nil {
			return nil, errors.Invalidf("transport", "Open", "loopback needs a shared pipe")
		}
		return deps.Pipe.Source(), nil
	}
}

// OpenSink opens the sending end of the configured transport.
func OpenSink(ctx context.Context, cfg Config, deps Deps) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.logger().With("transport", string(cfg.Kind))

	switch cfg.Kind {
	case KindSerial:
		return OpenSerial(ctx, cfg.Serial, logger)
	case KindUDP:
		if cfg.UDP.Remote == "" {
			return nil, errors.Invalidf("transport", "OpenSink", "udp sink needs a remote address")
		}
		sink, err := DialUDP(ctx, cfg.UDP.Remote)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case KindNATS:
		sink, err := openNATSSink(ctx, cfg.NATS, deps, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case KindWebSocket:
		if cfg.WebSocket.Listen == "" {
			return nil, errors.Invalidf("transport", "OpenSink", "websocket sink needs a listen address")
		}
		sink, err := ServeWebSocket(cfg.WebSocket.Listen, cfg.WebSocket.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Waiting for websocket client", "address", sink.Addr())
		if err := sink.WaitForClient(ctx); err != nil {
			_ = sink.Close()
			return nil, err
		}
		return sink, nil
	default:
		if deps.Pipe == nil {
			return nil, errors.Invalidf("transport", "OpenSink", "loopback needs a shared pipe")
		}
		return deps.Pipe.Sink(), nil
	}
}

// Describe returns a short human readable endpoint for logs.
func (c Config) Describe() string {
	switch c.Kind {
	case KindSerial:
		return fmt.Sprintf("serial %s@%d", c.Serial.Port, c.Serial.Baud)
	case KindUDP:
		return fmt.Sprintf("udp %s:%d -> %s", c.UDP.Bind, c.UDP.Port, c.UDP.Remote)
	case KindNATS:
		return fmt.Sprintf("nats %v %s", c.NATS.URLs, c.NATS.Subject)
	case KindWebSocket:
		return fmt.Sprintf("websocket %s (listen %s)", c.WebSocket.URL, c.WebSocket.Listen)
	default:
		return string(c.Kind)
	}
}
