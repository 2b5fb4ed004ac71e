package rpc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// stdioFramer implements the LSP base-protocol framing: each message is
// preceded by a Content-Length header and a blank line.
type stdioFramer struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
}

// NewStdio creates a connection over a reader/writer pair, typically the
// stdout/stdin pipes of a language-server process. closer may be nil.
func NewStdio(r io.Reader, w io.Writer, closer io.Closer) *Endpoint {
	return newEndpoint(&stdioFramer{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: closer,
	})
}

func (f *stdioFramer) writeFrame(body []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(f.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := f.writer.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (f *stdioFramer) readFrame() ([]byte, error) {
	contentLength := 0
	for {
		line, err := f.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length: %w", err)
			}
			contentLength = n
		}
		// Content-Type and any other headers are ignored.
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(f.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *stdioFramer) close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
