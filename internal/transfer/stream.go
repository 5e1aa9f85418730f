package transfer

import (
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the read size for body transfers.
const ChunkSize = 64 * 1024

// IntegrityError reports a body whose received byte count differs from the
// declared length.
type IntegrityError struct {
	Declared int64
	Received int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("received %d out of %d bytes", e.Received, e.Declared)
}

// SendBody copies exactly n bytes from r to w in ChunkSize pieces.
func SendBody(w io.Writer, r io.Reader, n int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	sent, err := io.CopyBuffer(w, io.LimitReader(r, n), buf)
	if err != nil {
		return sent, fmt.Errorf("send body: %w", err)
	}
	if sent != n {
		return sent, &IntegrityError{Declared: n, Received: sent}
	}
	return sent, nil
}

// ReceiveBody reads declared bytes from r into w, chunk by chunk, and stops
// early when r ends. It returns the received count and an *IntegrityError when
// the count differs from declared.
func ReceiveBody(r io.Reader, declared int64, w io.Writer) (int64, error) {
	if declared < 0 {
		return 0, &IntegrityError{Declared: declared}
	}

	buf := make([]byte, ChunkSize)
	var done int64
	for done < declared {
		want := declared - done
		if want > ChunkSize {
			want = ChunkSize
		}
		n, err := r.Read(buf[:want])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return done, fmt.Errorf("write body: %w", werr)
			}
			done += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return done, fmt.Errorf("read body: %w", err)
		}
	}
	if done != declared {
		return done, &IntegrityError{Declared: declared, Received: done}
	}
	return done, nil
}
