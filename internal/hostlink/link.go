package hostlink

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Default queue sizes.
const (
	DefaultCommandQueue = 16
	DefaultSendQueue    = 256
)

// maxLine bounds a single incoming line.
const maxLine = 256

// Link runs the protocol over a byte stream. A reader goroutine parses
// host commands into Commands(); Send queues frames for a writer goroutine.
// Neither Send nor draining Commands() ever blocks the caller.
type Link struct {
	rwc io.ReadWriteCloser

	cmds chan Command
	out  chan string
	quit chan struct{}
	done chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu  sync.Mutex
	err error

	sent            atomic.Int64
	dropped         atomic.Int64
	droppedCommands atomic.Int64
	unknown         atomic.Int64

	// discarding is set while the reader skips the rest of an overlong line.
	discarding bool
}

// New starts a link over rwc. Zero queue sizes take the defaults.
func New(rwc io.ReadWriteCloser, commandQueue, sendQueue int) *Link {
	if commandQueue <= 0 {
		commandQueue = DefaultCommandQueue
	}
	if sendQueue <= 0 {
		sendQueue = DefaultSendQueue
	}
	l := &Link{
		rwc:  rwc,
		cmds: make(chan Command, commandQueue),
		out:  make(chan string, sendQueue),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	l.wg.Add(2)
	go l.readLoop()
	go l.writeLoop()
	return l
}

// Commands returns the channel of parsed host commands.
func (l *Link) Commands() <-chan Command {
	return l.cmds
}

// Send queues f for transmission. It returns false, and counts the drop,
// if the queue is full or the link has failed.
func (l *Link) Send(f Frame) bool {
	select {
	case <-l.done:
		l.dropped.Add(1)
		return false
	default:
	}
	select {
	case l.out <- f.Encode():
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// Done is closed when the link fails or is closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that ended the link, if any.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns frames written, frames dropped, commands dropped and unknown
// lines received.
func (l *Link) Stats() (sent, dropped, droppedCommands, unknown int64) {
	return l.sent.Load(), l.dropped.Load(), l.droppedCommands.Load(), l.unknown.Load()
}

// Close stops both goroutines and closes the stream.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.quit)
		err = l.rwc.Close()
		l.fail(nil)
		l.wg.Wait()
	})
	return err
}

func (l *Link) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return
	default:
	}
	l.err = err
	close(l.done)
}

func (l *Link) closing() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	sc := bufio.NewScanner(l.rwc)
	sc.Buffer(make([]byte, maxLine), maxLine)
	sc.Split(l.splitLines)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			l.unknown.Add(1)
			log.Debug().Str("line", line).Msg("hostlink: ignoring unknown line")
			continue
		}
		select {
		case l.cmds <- cmd:
		default:
			l.droppedCommands.Add(1)
			log.Warn().Stringer("command", cmd).Msg("hostlink: command queue full, dropping")
		}
	}

	err := sc.Err()
	if l.closing() {
		return
	}
	if err == nil {
		err = io.EOF
	}
	log.Error().Err(err).Msg("hostlink: read failed")
	l.fail(err)
}

// splitLines is bufio.ScanLines that drops lines longer than maxLine,
// counting each as unknown, instead of ending the scan.
func (l *Link) splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		if l.discarding {
			l.discarding = false
			return i + 1, nil, nil
		}
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if len(data) >= maxLine {
		if !l.discarding {
			l.discarding = true
			l.unknown.Add(1)
			log.Debug().Int("max", maxLine).Msg("hostlink: dropping overlong line")
		}
		return len(data), nil, nil
	}
	if atEOF && len(data) > 0 {
		if l.discarding {
			return len(data), nil, nil
		}
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

func (l *Link) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case line := <-l.out:
			if _, err := io.WriteString(l.rwc, line+"\n"); err != nil {
				if l.closing() {
					return
				}
				log.Error().Err(err).Msg("hostlink: write failed")
				l.fail(err)
				return
			}
			l.sent.Add(1)
		}
	}
}
