package transducer

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal interface the probe protocol needs from a serial
// port, so tests can run over an in-memory pipe.
type Port interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPort is a Port with a read deadline. go.bug.st/serial ports
// implement it.
type TimeoutPort interface {
	Port
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the port at path.
type Opener func(path string, mode *serial.Mode) (Port, error)

// OpenSystemPort opens a real serial device.
func OpenSystemPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}
