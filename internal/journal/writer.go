package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrQueueFull      = errors.New("journal queue full")
	ErrClosed         = errors.New("journal writer closed")
	ErrNotStarted     = errors.New("journal writer not started")
	ErrAlreadyStarted = errors.New("journal writer already started")
)

// Config controls the journal writer.
type Config struct {
	Dir        string
	FilePrefix string
	QueueSize  int
	FlushEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = "journal"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = time.Second
	}
	return c
}

// DefaultConfig returns a config writing to dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir}.withDefaults()
}

type appendRequest struct {
	header  schema.EventHeader
	payload []byte
}

// Writer appends framed events to a segment file from a buffered queue.
// Appends never block the engine loop: a full queue drops with an error
// the caller can count.
type Writer struct {
	cfg Config
	ch  chan appendRequest
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter creates a journal writer and ensures the directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal dir is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan appendRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	name := fmt.Sprintf("%s-%d.wal", w.cfg.FilePrefix, time.Now().UTC().UnixNano())
	f, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer f.Close()
		buf := bufio.NewWriter(f)
		ticker := time.NewTicker(w.cfg.FlushEvery)
		defer ticker.Stop()
		var frame []byte
		for {
			select {
			case <-ctx.Done():
				buf.Flush()
				return
			case <-ticker.C:
				if err := buf.Flush(); err != nil {
					w.err.Store(err)
				}
			case req, ok := <-w.ch:
				if !ok {
					if err := buf.Flush(); err != nil {
						w.err.Store(err)
					}
					return
				}
				frame = encodeRecord(frame, req.header, req.payload)
				if _, err := buf.Write(frame); err != nil {
					w.err.Store(err)
				}
			}
		}
	}()
	return nil
}

// TryAppend enqueues one event without blocking.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	var copied []byte
	if len(payload) > 0 {
		copied = make([]byte, len(payload))
		copy(copied, payload)
	}
	select {
	case w.ch <- appendRequest{header: header, payload: copied}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the queue, flushes, and returns any deferred write error.
func (w *Writer) Close() error {
	if !atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		return nil
	}
	close(w.ch)
	w.wg.Wait()
	if err, ok := w.err.Load().(error); ok {
		return err
	}
	return nil
}
