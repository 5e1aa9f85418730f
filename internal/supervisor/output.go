package supervisor

import "sync"

// maxBufferedLines bounds captured output between two reads; the oldest tenth
// is dropped when it is reached.
const maxBufferedLines = 10000

// outputBuffer collects lines until drained.
type outputBuffer struct {
	mu    sync.Mutex
	lines []string
}

func newOutputBuffer() *outputBuffer {
	return &outputBuffer{}
}

func (b *outputBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= maxBufferedLines {
		b.lines = append(b.lines[:0], b.lines[maxBufferedLines/10:]...)
	}
	b.lines = append(b.lines, line)
}

// drain returns the buffered lines and empties the buffer.
func (b *outputBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}
