package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	logx "animatron/pkg/logx"
)

const (
	DefaultBaud = 115200
	readTimeout = 200 * time.Millisecond
)

type Config struct {
	Enabled bool
	Port    string
	Baud    int
}

func ValidateConfig(c Config) error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("link.port required when link.enabled")
	}
	if c.Baud < 0 {
		return fmt.Errorf("link.baud must be >= 0")
	}
	return nil
}

// Opener returns a byte stream. Reads must return within a bounded time so
// Run can observe cancellation.
type Opener func(cfg Config) (io.ReadCloser, error)

// OpenSerial opens the configured port with a read timeout.
func OpenSerial(cfg Config) (io.ReadCloser, error) {
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("link: set read timeout: %w", err)
	}
	_ = p.ResetInputBuffer()
	return p, nil
}

// Reader pumps frames from the link into a handler.
type Reader struct {
	cfg     Config
	open    Opener
	handler func(code uint16)
	log     logx.Logger
}

func NewReader(cfg Config, open Opener, handler func(code uint16), log logx.Logger) *Reader {
	if open == nil {
		open = OpenSerial
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reader{cfg: cfg, open: open, handler: handler, log: log}
}

// Run opens the link and decodes until ctx is done or the stream fails. It is
// meant to run under a restarting supervisor.
func (r *Reader) Run(ctx context.Context) error {
	rc, err := r.open(r.cfg)
	if err != nil {
		return err
	}
	defer rc.Close()
	r.log.Info("link opened", logx.String("port", r.cfg.Port))

	// Unblock a pending Read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	var dec Decoder
	buf := make([]byte, 64)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			dec.Decode(buf[:n], func(code uint16) {
				r.log.Debug("link frame", logx.String("code", fmt.Sprintf("0x%04X", code)))
				if r.handler != nil {
					r.handler(code)
				}
			})
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("link: stream closed")
			}
			return fmt.Errorf("link: read: %w", err)
		}
	}
}
