package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"strconv"

	"github.com/bilbercode/framecast/internal/rtsp/transport"
)

const Version = "RTSP/1.0"

const (
	fieldCSeq           = "CSeq"
	fieldSession        = "Session"
	fieldTransport      = "Transport"
	fieldRange          = "Range"
	fieldSpeed          = "Speed"
	fieldSubtitleMode   = "Subtitle-Mode"
	fieldCompressMode   = "Compress-Mode"
	fieldSubtitleAdjust = "Subtitle-Adjust"
	fieldList           = "List"
	fieldLength         = "Length"
	fieldAllow          = "Allow"
)

var knownFields = []string{
	fieldCSeq, fieldSession, fieldTransport, fieldRange, fieldSpeed, fieldSubtitleMode,
	fieldCompressMode, fieldSubtitleAdjust, fieldList, fieldLength, fieldAllow,
}

// Request is one of the per-command request variants.
type Request interface {
	Method() Method
	Write(w io.Writer) error
	header() *RequestHeader
}

type RequestHeader struct {
	URL     string
	CSeq    int
	Session string
}

func (h *RequestHeader) header() *RequestHeader {
	return h
}

// HeaderOf exposes the fields shared by every request.
func HeaderOf(r Request) RequestHeader {
	return *r.header()
}

// PlaybackParams are declared by the client on PLAY. Only the subtitle mode
// has an effect on the server.
type PlaybackParams struct {
	Speed          float64
	SubtitleMode   bool
	CompressMode   bool
	SubtitleAdjust float64
}

func DefaultPlaybackParams() PlaybackParams {
	return PlaybackParams{Speed: 1}
}

type DescribeRequest struct {
	RequestHeader
}

func (r *DescribeRequest) Method() Method { return MethodDescribe }

func (r *DescribeRequest) Write(w io.Writer) error {
	fields := []field{{fieldCSeq, strconv.Itoa(r.CSeq)}}
	if r.Session != "" {
		fields = append(fields, field{fieldSession, r.Session})
	}
	return writeMessage(w, requestLine(MethodDescribe, r.URL), fields)
}

type SetupRequest struct {
	RequestHeader
	Transport transport.Spec
}

func (r *SetupRequest) Method() Method { return MethodSetup }

func (r *SetupRequest) Write(w io.Writer) error {
	return writeMessage(w, requestLine(MethodSetup, r.URL), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldTransport, r.Transport.String()},
	})
}

type PlayRequest struct {
	RequestHeader
	// Range is the frame to resume after, honoured when HasRange is set.
	Range    int
	HasRange bool
	Params   PlaybackParams
}

func (r *PlayRequest) Method() Method { return MethodPlay }

func (r *PlayRequest) Write(w io.Writer) error {
	fields := []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
	}
	if r.HasRange {
		fields = append(fields, field{fieldRange, fmt.Sprintf("npt=%d", r.Range)})
	}
	fields = append(fields,
		field{fieldSpeed, strconv.FormatFloat(r.Params.Speed, 'g', -1, 64)},
		field{fieldSubtitleMode, strconv.FormatBool(r.Params.SubtitleMode)},
		field{fieldCompressMode, strconv.FormatBool(r.Params.CompressMode)},
		field{fieldSubtitleAdjust, strconv.FormatFloat(r.Params.SubtitleAdjust, 'g', -1, 64)},
	)
	return writeMessage(w, requestLine(MethodPlay, r.URL), fields)
}

type PauseRequest struct {
	RequestHeader
}

func (r *PauseRequest) Method() Method { return MethodPause }

func (r *PauseRequest) Write(w io.Writer) error {
	return writeMessage(w, requestLine(MethodPause, r.URL), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
	})
}

type TeardownRequest struct {
	RequestHeader
}

func (r *TeardownRequest) Method() Method { return MethodTeardown }

func (r *TeardownRequest) Write(w io.Writer) error {
	return writeMessage(w, requestLine(MethodTeardown, r.URL), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
	})
}

type field struct {
	name  string
	value string
}

func requestLine(method Method, url string) string {
	return fmt.Sprintf("%s %s %s", method, url, Version)
}

// writeMessage renders the whole message before a single write so
// concurrent writers never interleave lines.
func writeMessage(w io.Writer, first string, fields []field) error {
	var buf bytes.Buffer
	writer := textproto.NewWriter(bufio.NewWriter(&buf))

	err := writer.PrintfLine("%s", first)
	if err != nil {
		return fmt.Errorf("failed to write message line: %w", err)
	}
	for _, f := range fields {
		if err := writer.PrintfLine("%s: %s", f.name, f.value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}
	if err := writer.PrintfLine(""); err != nil {
		return err
	}

	_, err = w.Write(buf.Bytes())
	return err
}
