package transport

import (
	"context"
	stderrors "errors"
	"log/slog"

	"go.bug.st/serial"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/pkg/retry"
)

// OpenSerial opens a serial port in 8N1 mode, retrying while the device is
// busy or not yet enumerated. A port that does not exist fails at once.
func OpenSerial(ctx context.Context, cfg SerialConfig, logger *slog.Logger) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := retry.DoWithResult(ctx, retry.Quick(), func() (serial.Port, error) {
		p, err := serial.Open(cfg.Port, mode)
		if err != nil {
			var portErr *serial.PortError
			if stderrors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
				return nil, retry.NonRetryable(err)
			}
			logger.Debug("Serial open failed, retrying", "port", cfg.Port, "error", err)
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "transport", "OpenSerial", "open "+cfg.Port)
	}

	if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, errors.WrapFatal(err, "transport", "OpenSerial", "set read timeout")
	}

	logger.Info("Serial port opened", "port", cfg.Port, "baud", cfg.Baud)
	return port, nil
}

// SerialPorts lists the serial ports present on this machine.
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "transport", "SerialPorts", "list ports")
	}
	return ports, nil
}
