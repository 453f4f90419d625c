// Package serialimu reads an IMU attached over a serial line.
//
// The device answers each "I\n" request with one line of six
// comma-separated values: gyro x,y,z in rad/s then accel x,y,z in m/s².
package serialimu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

// DefaultBaudRate is the serial speed used when none is configured.
const DefaultBaudRate = 115200

const (
	request     = "I\n"
	maxLineSize = 256
)

// ErrTimeout is returned when the device does not answer in time.
var ErrTimeout = errors.New("imu read timeout")

type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// Service is a kos.IMUService over a serial line. It is not safe for
// concurrent use.
type Service struct {
	rw     io.ReadWriter
	closer io.Closer
	buf    []byte
}

var _ kos.IMUService = (*Service)(nil)

// Open opens the serial port.
func Open(port string, baudRate int) (*Service, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open imu port %s: %w", port, err)
	}
	s := New(p)
	s.closer = p
	return s, nil
}

// New creates a Service on an already open stream.
func New(rw io.ReadWriter) *Service {
	return &Service{rw: rw}
}

// Close closes the underlying port if Open created it.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// GetImuValues implements kos.IMUService.
func (s *Service) GetImuValues(ctx context.Context) (kos.IMUValues, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}

	s.buf = s.buf[:0]
	if _, err := io.WriteString(s.rw, request); err != nil {
		return kos.IMUValues{}, fmt.Errorf("write imu request: %w", err)
	}

	line, err := s.readLine(ctx, deadline)
	if err != nil {
		return kos.IMUValues{}, err
	}
	return ParseLine(line)
}

func (s *Service) readLine(ctx context.Context, deadline time.Time) (string, error) {
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			return string(s.buf[:i]), nil
		}
		if len(s.buf) > maxLineSize {
			return "", fmt.Errorf("imu line longer than %d bytes", maxLineSize)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if rt, ok := s.rw.(readTimeouter); ok {
			if err := rt.SetReadTimeout(remaining); err != nil {
				return "", fmt.Errorf("set read timeout: %w", err)
			}
		}

		// A serial read timeout returns zero bytes and no error.
		n, err := s.rw.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
			return "", fmt.Errorf("read imu: %w", err)
		}
	}
}

// ParseLine parses one "gx,gy,gz,ax,ay,az" line.
func ParseLine(line string) (kos.IMUValues, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 6 {
		return kos.IMUValues{}, fmt.Errorf("imu line %q: want 6 fields, got %d", line, len(fields))
	}

	var v [6]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return kos.IMUValues{}, fmt.Errorf("imu line %q: field %d: %w", line, i, err)
		}
		v[i] = x
	}

	return kos.IMUValues{
		GyroX: v[0], GyroY: v[1], GyroZ: v[2],
		AccelX: v[3], AccelY: v[4], AccelZ: v[5],
	}, nil
}
