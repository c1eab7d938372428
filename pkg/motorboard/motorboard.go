// Package motorboard talks to the motor controller board over USB serial.
//
// The board streams encoder counts, in degrees of wheel rotation, as lines of
// the form "E <left> <right>" and accepts speed commands "M <left> <right>"
// with speeds from -127 to 127.  Other lines are diagnostics.
package motorboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
)

var (
	ErrWriteFailed = errors.New("short write to motor board")
	ErrNotReady    = errors.New("no encoder reading yet")
)

const readyPollPeriod = 10 * time.Millisecond

// Port is the subset of a serial port the board needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

type Board struct {
	port Port

	writeLock sync.Mutex

	countsLock  sync.Mutex
	left, right int
	seen        bool

	log *slog.Logger
}

// Open opens the board's serial port at 8N1.
func Open(path string, baud int) (*Board, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open motor board %s: %w", path, err)
	}
	return New(port), nil
}

func New(port Port) *Board {
	return &Board{
		port: port,
		log:  log.With("component", "motorboard"),
	}
}

func (b *Board) SetMotorSpeeds(left, right int8) error {
	return b.send(fmt.Sprintf("M %d %d\n", left, right))
}

func (b *Board) send(command string) error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()
	n, err := b.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// TachoCounts returns the latest pair of encoder counts.  Both come from the
// same line so they were sampled together.
func (b *Board) TachoCounts() (left, right int) {
	b.countsLock.Lock()
	defer b.countsLock.Unlock()
	return b.left, b.right
}

// Ready returns ErrNotReady until the first encoder line has been read.
func (b *Board) Ready() error {
	b.countsLock.Lock()
	defer b.countsLock.Unlock()
	if !b.seen {
		return ErrNotReady
	}
	return nil
}

// WaitReady waits for the first encoder line, which Monitor must be reading.
// Counts before then are meaningless, so odometry shouldn't start earlier.
func (b *Board) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollPeriod)
	defer ticker.Stop()
	for {
		if b.Ready() == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("motor board silent for %v: %w", timeout, ErrNotReady)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Monitor reads lines from the board until ctx is done or the port fails.
func (b *Board) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(b.port)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks, so it runs apart from the loop watching ctx.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return fmt.Errorf("motor board read failed: %w", err)
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return fmt.Errorf("motor board read failed: %w", err)
				default:
				}
				return nil
			}
			b.handleLine(line)
		}
	}
}

func (b *Board) handleLine(line string) {
	if !strings.HasPrefix(line, "E ") {
		b.log.Debug("Board says", "line", line)
		return
	}
	left, right, err := parseEncoders(line)
	if err != nil {
		b.log.Warn("Bad encoder line", "line", line, "err", err)
		return
	}
	b.countsLock.Lock()
	b.left, b.right = left, right
	b.seen = true
	b.countsLock.Unlock()
}

func parseEncoders(line string) (left, right int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "E" {
		return 0, 0, fmt.Errorf("expected \"E <left> <right>\", got %q", line)
	}
	if left, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, err
	}
	if right, err = strconv.Atoi(fields[2]); err != nil {
		return 0, 0, err
	}
	return left, right, nil
}

// Close stops the motors and closes the port.
func (b *Board) Close() error {
	if err := b.SetMotorSpeeds(0, 0); err != nil {
		b.log.Warn("Failed to stop motors", "err", err)
	}
	return b.port.Close()
}
