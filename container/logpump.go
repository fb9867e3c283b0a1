package container

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// logQueueDepth is the bounded queue size for the log pump: a reader
// drains engine output into this queue, a writer drains the queue
// into the sink, and on overflow the eldest queued chunk is dropped
// to admit the new one.
const logQueueDepth = 1024

type logChunk struct {
	stderr bool
	data   []byte
}

// logPump multiplexes a reader goroutine (draining an io.Reader pair
// via stdcopy) into a bounded, drop-oldest channel, and a writer
// goroutine that drains the channel into a LogSink. Streaming never
// panics or blocks the caller past goroutine spawn; failures set an
// internal stop flag and are swallowed.
type logPump struct {
	log *logrus.Entry

	mu      sync.Mutex
	queue   []logChunk
	notify  chan struct{}
	stopped bool
}

func newLogPump(log *logrus.Entry) *logPump {
	return &logPump{log: log, notify: make(chan struct{}, 1)}
}

// start spawns the reader (via readFn, which should write demuxed
// stdout/stderr into the two io.Writers it's given) and the writer
// that drains the pump's internal queue into sink. It returns
// immediately; both goroutines run in the background.
func (p *logPump) start(ctx context.Context, readFn func(stdoutW, stderrW io.Writer) error, sink LogSink) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		stdoutW := pumpWriter{p: p, stderr: false}
		stderrW := pumpWriter{p: p, stderr: true}
		if err := readFn(stdoutW, stderrW); err != nil && err != io.EOF {
			if p.log != nil {
				p.log.WithError(err).Debug("log stream reader stopped")
			}
		}
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.signal()
	}()

	go p.writerLoop(ctx, sink, done)
}

func (p *logPump) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// push appends a chunk, dropping the oldest queued entry if the bound
// is exceeded.
func (p *logPump) push(c logChunk) {
	p.mu.Lock()
	if len(p.queue) >= logQueueDepth {
		p.queue = p.queue[1:]
	}
	p.queue = append(p.queue, c)
	p.mu.Unlock()
	p.signal()
}

func (p *logPump) writerLoop(ctx context.Context, sink LogSink, readerDone <-chan struct{}) {
	for {
		p.mu.Lock()
		var next *logChunk
		if len(p.queue) > 0 {
			c := p.queue[0]
			p.queue = p.queue[1:]
			next = &c
		}
		stopped := p.stopped && len(p.queue) == 0
		p.mu.Unlock()

		if next != nil {
			if next.stderr {
				_ = sink.WriteStderr(next.data)
			} else {
				_ = sink.WriteStdout(next.data)
			}
			continue
		}
		if stopped {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		case <-readerDone:
		}
	}
}

type pumpWriter struct {
	p      *logPump
	stderr bool
}

func (w pumpWriter) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	w.p.push(logChunk{stderr: w.stderr, data: cp})
	return len(p), nil
}
