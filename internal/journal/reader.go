package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrChecksumMismatch = errors.New("journal checksum mismatch")
	ErrPayloadTooLarge  = errors.New("journal payload too large")
)

// PlaybackConfig controls journal replay.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed paces playback relative to real time; 0 replays unpaced.
	Speed           float64
	UseRecvTime     bool
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = "journal"
	}
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = 1 << 20
	}
	return c
}

// Playback streams recorded events back in write order.
type Playback struct {
	cfg   PlaybackConfig
	files []string
}

// NewPlayback discovers segment files under cfg.Dir.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	pattern := filepath.Join(cfg.Dir, cfg.FilePrefix+"-*.wal")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no journal segments match %s", pattern)
	}
	sort.Strings(files)
	return &Playback{cfg: cfg, files: files}, nil
}

// Run replays all segments through handle, pacing by event time when
// Speed > 0. Stops on context cancellation or handler error.
func (p *Playback) Run(ctx context.Context, handle func(schema.EventHeader, []byte) error) error {
	var lastTs int64
	for _, file := range p.files {
		if err := p.runFile(ctx, file, &lastTs, handle); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) runFile(ctx context.Context, path string, lastTs *int64, handle func(schema.EventHeader, []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	headerBuf := make([]byte, headerSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, headerBuf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// truncated tail record from a crash, stop cleanly
				return nil
			}
			return err
		}
		header, payloadLen, crc, ok := decodeHeader(headerBuf)
		if !ok {
			return fmt.Errorf("journal header corrupt in %s", path)
		}
		if payloadLen > p.cfg.MaxPayloadSize {
			return ErrPayloadTooLarge
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		if !p.cfg.DisableChecksum && checksum(headerBuf, payload) != crc {
			return ErrChecksumMismatch
		}

		if p.cfg.Speed > 0 {
			ts := header.TsEvent
			if p.cfg.UseRecvTime {
				ts = header.TsRecv
			}
			if *lastTs > 0 && ts > *lastTs {
				delay := time.Duration(float64(ts-*lastTs) / p.cfg.Speed)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			*lastTs = ts
		}

		if err := handle(header, payload); err != nil {
			return err
		}
	}
}
