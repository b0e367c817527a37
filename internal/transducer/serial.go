package transducer

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonar"
)

// ErrProtocol marks a malformed or unexpected reply from the probe head.
var ErrProtocol = errors.New("transducer: protocol error")

// DeviceError is an ERR reply from the probe head.
type DeviceError struct {
	Msg string
}

func (e *DeviceError) Error() string { return "transducer: device error: " + e.Msg }

// DefaultMaxRecording caps the REC length accepted from a device.
const DefaultMaxRecording = 1 << 22

// SerialConfig configures a serial probe head.
type SerialConfig struct {
	Path         string
	Options      PortOptions
	ReadTimeout  time.Duration // per read; 0 leaves the port default
	OpenAttempts int           // extra open attempts after the first
	OpenInterval time.Duration // first backoff interval between open attempts
	Steerable    bool          // the head has a pan/tilt mount that accepts AIM
	MaxRecording int           // 0 means DefaultMaxRecording
}

// Serial drives a probe head over a serial link. Each exchange is a text
// header followed by little-endian float32 samples:
//
//	host:   PLAY <n> <rate>\n  n × float32
//	device: REC <m>\n          m × float32
//	    or  ERR <message>\n
//
// A steerable head also accepts AIM <azimuth> <elevation>\n (radians) and
// answers OK\n or ERR.
type Serial struct {
	cfg  SerialConfig
	port Port
	rd   *bufio.Reader

	mu sync.Mutex // one exchange at a time
}

// OpenSerial opens cfg.Path with the system serial driver, retrying with
// exponential backoff.
func OpenSerial(ctx context.Context, cfg SerialConfig) (*Serial, error) {
	return OpenSerialWith(ctx, cfg, OpenSystemPort)
}

// OpenSerialWith is OpenSerial with a custom opener.
func OpenSerialWith(ctx context.Context, cfg SerialConfig, open Opener) (*Serial, error) {
	mode, err := cfg.Options.SerialMode()
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	if cfg.OpenInterval > 0 {
		b.InitialInterval = cfg.OpenInterval
	}
	b.MaxElapsedTime = 0

	var port Port
	err = backoff.RetryNotify(func() error {
		p, err := open(cfg.Path, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.OpenAttempts, 0))), ctx),
		func(err error, next time.Duration) {
			monitoring.Logf("failed to open %s, retrying in %s: %v", cfg.Path, next.Round(time.Millisecond), err)
		})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	if cfg.ReadTimeout > 0 {
		if tp, ok := port.(TimeoutPort); ok {
			if err := tp.SetReadTimeout(cfg.ReadTimeout); err != nil {
				port.Close()
				return nil, fmt.Errorf("set read timeout: %w", err)
			}
		}
	}
	monitoring.Logf("opened probe head at %s (%d baud)", cfg.Path, mode.BaudRate)
	return NewSerial(port, cfg), nil
}

// NewSerial wraps an already open port.
func NewSerial(port Port, cfg SerialConfig) *Serial {
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = DefaultMaxRecording
	}
	return &Serial{cfg: cfg, port: port, rd: bufio.NewReader(port)}
}

// PlayAndRecord sends one probe and waits for the recording.
func (s *Serial) PlayAndRecord(ctx context.Context, sig sonar.Signal) (sonar.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := make([]float32, sig.Len())
	for i := range payload {
		payload[i] = float32(sig.At(i))
	}

	w := bufio.NewWriter(s.port)
	fmt.Fprintf(w, "PLAY %d %d\n", sig.Len(), sig.SampleRate())
	if err := binary.Write(w, binary.LittleEndian, payload); err != nil {
		return nil, fmt.Errorf("write probe: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("write probe: %w", err)
	}

	fields, err := s.readReply("REC")
	if err != nil {
		return nil, err
	}
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: malformed REC header %q", ErrProtocol, strings.Join(fields, " "))
	}
	m, err := strconv.Atoi(fields[1])
	if err != nil || m < 0 || m > s.cfg.MaxRecording {
		return nil, fmt.Errorf("%w: bad recording length %q", ErrProtocol, fields[1])
	}

	buf := make([]byte, 4*m)
	if _, err := io.ReadFull(s.rd, buf); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	rec := make(sonar.Recording, m)
	for i := range rec {
		rec[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return rec, nil
}

// PointAt turns a steerable head. It does nothing on a fixed head.
func (s *Serial) PointAt(ctx context.Context, azimuth, elevation float64) error {
	if !s.cfg.Steerable {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.port, "AIM %.6f %.6f\n", azimuth, elevation); err != nil {
		return fmt.Errorf("write aim: %w", err)
	}
	_, err := s.readReply("OK")
	return err
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// readReply reads one header line and checks it starts with want. An ERR
// line becomes a *DeviceError.
func (s *Serial) readReply(want string) ([]string, error) {
	line, err := s.rd.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	line = strings.TrimSpace(line)
	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return nil, &DeviceError{Msg: strings.TrimSpace(msg)}
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != want {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrProtocol, want, line)
	}
	return fields, nil
}
