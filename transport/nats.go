package transport

import (
	"context"
	"log/slog"
	"strings"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/natsclient"
	"github.com/7-Dany/Stress-Strain/pkg/retry"
)

// Subscriber delivers subject messages to a handler. natsclient.Client and
// testutil.MockNATSClient satisfy it.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Publisher publishes subject messages.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NewNATSSource subscribes to subject and queues every message for Read.
// onClose runs once when the source is closed.
func NewNATSSource(ctx context.Context, sub Subscriber, subject string, registry *metric.MetricsRegistry, onClose func() error) (Source, error) {
	q, err := newQueueSource(registry, "nats_source", onClose)
	if err != nil {
		return nil, err
	}

	err = sub.Subscribe(ctx, subject, func(_ context.Context, data []byte) {
		// a closed queue rejects late deliveries
		_ = q.push(data)
	})
	if err != nil {
		q.finish()
		return nil, errors.WrapTransient(err, "transport", "NewNATSSource", "subscribe "+subject)
	}
	return q, nil
}

// NATSSink publishes every Write to a subject.
type NATSSink struct {
	ctx     context.Context
	pub     Publisher
	subject string
	onClose func() error
}

// NewNATSSink creates a sink publishing on subject.
func NewNATSSink(ctx context.Context, pub Publisher, subject string, onClose func() error) *NATSSink {
	return &NATSSink{ctx: ctx, pub: pub, subject: subject, onClose: onClose}
}

// Write publishes p as one message.
func (s *NATSSink) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if err := s.pub.Publish(s.ctx, s.subject, data); err != nil {
		return 0, errors.Wrap(err, "NATSSink", "Write", "publish "+s.subject)
	}
	return len(p), nil
}

// Close runs the close hook, if any.
func (s *NATSSink) Close() error {
	if s.onClose == nil {
		return nil
	}
	return s.onClose()
}

// natsOptions maps the transport settings onto client options
func natsOptions(cfg NATSConfig, deps Deps, role string, logger *slog.Logger) []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithName("tensile-" + role),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithMetrics(deps.Registry.CoreMetrics()),
		natsclient.WithDisconnectCallback(func(err error) {
			logger.Warn("NATS disconnected", "role", role, "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			logger.Info("NATS reconnected", "role", role)
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(cfg.PingInterval))
	}
	if cfg.MaxBackoff > 0 {
		opts = append(opts, natsclient.WithMaxBackoff(cfg.MaxBackoff))
	}
	if cfg.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(cfg.DrainTimeout))
	}
	return opts
}

func connectNATS(ctx context.Context, cfg NATSConfig, deps Deps, role string, logger *slog.Logger) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), natsOptions(cfg, deps, role, logger)...)
	if err != nil {
		return nil, err
	}

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		logger.Error("NATS connect failed", "role", role, "failures", client.Failures(), "error", err)
		return nil, errors.WrapTransient(err, "transport", "connectNATS", "connect")
	}
	return client, nil
}

func openNATSSource(ctx context.Context, cfg NATSConfig, deps Deps, logger *slog.Logger) (Source, error) {
	client, err := connectNATS(ctx, cfg, deps, "source", logger)
	if err != nil {
		return nil, err
	}
	src, err := NewNATSSource(ctx, client, cfg.Subject, deps.Registry, func() error {
		return client.Close(context.Background())
	})
	if err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	logger.Info("NATS source subscribed", "subject", cfg.Subject)
	return src, nil
}

func openNATSSink(ctx context.Context, cfg NATSConfig, deps Deps, logger *slog.Logger) (*NATSSink, error) {
	client, err := connectNATS(ctx, cfg, deps, "sink", logger)
	if err != nil {
		return nil, err
	}
	return NewNATSSink(ctx, client, cfg.Subject, func() error {
		return client.Close(context.Background())
	}), nil
}
