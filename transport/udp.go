package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/pkg/retry"
)

const (
	maxDatagram      = 65536
	socketBufferSize = 256 * 1024
)

// UDPSource receives records as datagrams on a bound socket. Each datagram
// may carry one or more whole or partial records.
type UDPSource struct {
	conn    *net.UDPConn
	logger  *slog.Logger
	timeout atomic.Int64

	datagram []byte
	pending  []byte

	packets atomic.Int64
	bytes   atomic.Int64

	closeOnce sync.Once
}

// ListenUDP binds cfg.Bind:cfg.Port, retrying while the address is busy.
// Port 0 picks a free port, see Addr.
func ListenUDP(ctx context.Context, cfg UDPConfig, logger *slog.Logger) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port))
	if err != nil {
		return nil, errors.WrapInvalid(err, "transport", "ListenUDP", "resolve address")
	}

	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*net.UDPConn, error) {
		return net.ListenUDP("udp", addr)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "transport", "ListenUDP", "socket binding")
	}

	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		// some systems cap socket buffers
		logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
	}

	s := &UDPSource{
		conn:     conn,
		logger:   logger,
		datagram: make([]byte, maxDatagram),
	}
	s.timeout.Store(int64(defaultReadTimeout))
	logger.Info("UDP source listening", "address", conn.LocalAddr().String())
	return s, nil
}

// Addr returns the bound local address.
func (s *UDPSource) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Read returns bytes from the current datagram, receiving a new one when it
// is exhausted.
func (s *UDPSource) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(time.Duration(s.timeout.Load())))

		n, _, err := s.conn.ReadFromUDP(s.datagram)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				return 0, nil
			}
			return 0, errors.Wrap(err, "UDPSource", "Read", "receive datagram")
		}
		s.packets.Add(1)
		s.bytes.Add(int64(n))
		s.pending = s.datagram[:n]
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// SetReadTimeout sets how long Read waits for a datagram.
func (s *UDPSource) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		d = defaultReadTimeout
	}
	s.timeout.Store(int64(d))
	return nil
}

// Packets returns the number of datagrams received.
func (s *UDPSource) Packets() int64 {
	return s.packets.Load()
}

// Close closes the socket. Safe to call more than once.
func (s *UDPSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// UDPSink sends each Write as one datagram.
type UDPSink struct {
	conn *net.UDPConn
}

// DialUDP connects a sink to remote.
func DialUDP(ctx context.Context, remote string) (*UDPSink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", remote)
	if err != nil {
		return nil, errors.WrapTransient(err, "transport", "DialUDP", "dial "+remote)
	}
	return &UDPSink{conn: conn.(*net.UDPConn)}, nil
}

// Write sends p as a single datagram.
func (s *UDPSink) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Close closes the socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}
