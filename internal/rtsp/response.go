package rtsp

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bilbercode/framecast/internal/rtsp/transport"
)

// Reply is one of the per-command reply variants, or an ErrorReply.
type Reply interface {
	Write(w io.Writer) error
	status() *Status
}

type Status struct {
	Code   int
	Reason string
	CSeq   int
}

func (s *Status) status() *Status {
	return s
}

func (s *Status) line() string {
	reason := s.Reason
	if reason == "" {
		reason = http.StatusText(s.Code)
	}
	return fmt.Sprintf("%s %d %s", Version, s.Code, reason)
}

// StatusOf exposes the status line and CSeq of any reply.
func StatusOf(r Reply) Status {
	return *r.status()
}

func okStatus(seq int) Status {
	return Status{Code: http.StatusOK, Reason: http.StatusText(http.StatusOK), CSeq: seq}
}

type DescribeReply struct {
	Status
	List []string
}

func (r *DescribeReply) Write(w io.Writer) error {
	return writeMessage(w, r.line(), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldList, EncodeList(r.List)},
	})
}

type SetupReply struct {
	Status
	Session   string
	Transport transport.Spec
	// Length is the frame count of the resource, zero when unknown.
	Length int
}

func (r *SetupReply) Write(w io.Writer) error {
	return writeMessage(w, r.line(), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
		{fieldTransport, r.Transport.String()},
		{fieldLength, strconv.Itoa(r.Length)},
	})
}

type PlayReply struct {
	Status
	Session string
}

func (r *PlayReply) Write(w io.Writer) error {
	return writeMessage(w, r.line(), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
	})
}

type PauseReply struct {
	Status
	Session string
}

func (r *PauseReply) Write(w io.Writer) error {
	return writeMessage(w, r.line(), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
		{fieldSession, r.Session},
	})
}

type TeardownReply struct {
	Status
}

func (r *TeardownReply) Write(w io.Writer) error {
	return writeMessage(w, r.line(), []field{
		{fieldCSeq, strconv.Itoa(r.CSeq)},
	})
}

// ErrorReply is any non-200 reply. Peers read only its status line.
type ErrorReply struct {
	Status
	Allow []Method
}

func (r *ErrorReply) Write(w io.Writer) error {
	var fields []field
	if r.CSeq > 0 {
		fields = append(fields, field{fieldCSeq, strconv.Itoa(r.CSeq)})
	}
	if len(r.Allow) > 0 {
		allowed := make([]string, len(r.Allow))
		for i, m := range r.Allow {
			allowed[i] = m.String()
		}
		fields = append(fields, field{fieldAllow, strings.Join(allowed, ", ")})
	}
	return writeMessage(w, r.line(), fields)
}

func (r *ErrorReply) Error() string {
	return fmt.Sprintf("%d %s", r.Code, r.Reason)
}
