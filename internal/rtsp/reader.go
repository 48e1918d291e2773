package rtsp

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
	"strings"
)

// messageReader splits a control stream into messages. A message ends at
// the first empty line; empty lines between messages are skipped.
type messageReader struct {
	reader *textproto.Reader
}

func newMessageReader(r io.Reader) *messageReader {
	return &messageReader{reader: textproto.NewReader(bufio.NewReaderSize(r, 4096))}
}

func (m *messageReader) ReadMessage() (string, error) {
	var lines []string
	for {
		line, err := m.reader.ReadLine()
		switch {
		case errors.Is(err, io.EOF) && len(lines) > 0:
			return strings.Join(lines, "\n"), nil
		case err != nil:
			return "", err
		case line == "" && len(lines) == 0:
			continue
		case line == "":
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
}
