package accounting

import (
	"bufio"
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/pkg/conn"
)

var (
	ErrSinkClosed = errors.New("accounting sink closed")
)

var json = sonic.ConfigFastest

// Sink persists trade records.
type Sink interface {
	Write(ctx context.Context, rec TradeRecord) error
	Close() error
}

// PostgresSink writes trade records through gorm.
type PostgresSink struct {
	client *conn.Client
}

// NewPostgresSink migrates the trade_records table and returns a sink.
func NewPostgresSink(client *conn.Client) (*PostgresSink, error) {
	if err := client.DB().AutoMigrate(&TradeRecord{}); err != nil {
		return nil, err
	}
	return &PostgresSink{client: client}, nil
}

func (s *PostgresSink) Write(ctx context.Context, rec TradeRecord) error {
	return s.client.DB().WithContext(ctx).Create(&rec).Error
}

func (s *PostgresSink) Close() error {
	return s.client.Close()
}

// JSONLSink appends one JSON object per line to a file. It is the fallback
// when no database is configured.
type JSONLSink struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

// NewJSONLSink opens (or creates) the target file for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{f: f, buf: bufio.NewWriter(f)}, nil
}

func (s *JSONLSink) Write(_ context.Context, rec TradeRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	return s.buf.WriteByte('\n')
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// Recorder decouples the engine loop from sink latency. Emit never blocks:
// when the queue is full the record is dropped and counted.
type Recorder struct {
	sink   Sink
	ch     chan TradeRecord
	wg     sync.WaitGroup
	closed uint32
	drops  uint64
}

// NewRecorder wraps sink with a buffered queue of the given size.
func NewRecorder(sink Sink, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Recorder{
		sink: sink,
		ch:   make(chan TradeRecord, queueSize),
	}
}

// Start runs the drain loop until the context ends or Close is called.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				r.drain(ctx)
				return
			case rec, ok := <-r.ch:
				if !ok {
					return
				}
				r.write(ctx, rec)
			}
		}
	}()
}

// Emit enqueues a record without blocking.
func (r *Recorder) Emit(rec TradeRecord) {
	if atomic.LoadUint32(&r.closed) != 0 {
		return
	}
	select {
	case r.ch <- rec:
	default:
		atomic.AddUint64(&r.drops, 1)
	}
}

// Drops reports how many records were discarded on a full queue.
func (r *Recorder) Drops() uint64 {
	return atomic.LoadUint64(&r.drops)
}

// Close stops accepting records, drains the queue, and closes the sink.
func (r *Recorder) Close() error {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return ErrSinkClosed
	}
	close(r.ch)
	r.wg.Wait()
	return r.sink.Close()
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case rec, ok := <-r.ch:
			if !ok {
				return
			}
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec TradeRecord) {
	if err := r.sink.Write(ctx, rec); err != nil {
		logs.Warnf("accounting write failed: %+v", err)
	}
}
