package rtsp

import (
	"context"
	"net"

	"github.com/bilbercode/framecast/internal/stream"
)

type Server interface {
	Start(ctx context.Context, addr string) error
	Serve(ctx context.Context, listener net.Listener) error
}

type Client interface {
	// Send assigns the next CSeq to request and writes it without waiting
	// for the reply.
	Send(request Request) error
	Conn() net.Conn

	Close() error
	Done() <-chan struct{}
	Err() error
}

// ReplyHandler receives every correlated reply together with the method of
// the request it answers. When the reply to a request is lost, reply is nil
// and err wraps ErrReplyLost.
type ReplyHandler func(method Method, reply Reply, err error)

// Library resolves resource names for DESCRIBE and SETUP.
type Library interface {
	List() ([]string, error)
	Open(name string) (stream.Source, error)
}

type ServerConfig struct {
	Ports        stream.PortRange
	BindAttempts int
	Sender       stream.SenderConfig
}
