package rtsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	ErrUncorrelatedReply = errors.New("reply does not match a pending request")
	ErrReplyLost         = errors.New("reply lost")
)

type client struct {
	sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	rtspSocket   net.Conn
	sequence     int
	requestQueue *requestQueue
	handler      ReplyHandler

	errMu sync.Mutex
	err   error
}

type pendingRequest struct {
	sequence int
	method   Method
}

// requestQueue holds sent requests in CSeq order until their reply arrives.
type requestQueue struct {
	mu    sync.Mutex
	items []pendingRequest
}

func Dial(ctx context.Context, addr string, handler ReplyHandler) (Client, error) {
	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial endpoint %s: %w", addr, err)
	}
	return NewClient(nc, handler), nil
}

func NewClient(nc net.Conn, handler ReplyHandler) Client {
	ctx, cancel := context.WithCancel(context.Background())
	return NewClientWithContextCancel(nc, ctx, cancel, handler)
}

func NewClientWithContextCancel(nc net.Conn, ctx context.Context, cancel context.CancelFunc, handler ReplyHandler) Client {
	c := &client{
		ctx:          ctx,
		cancel:       cancel,
		rtspSocket:   nc,
		requestQueue: newRequestQueue(),
		handler:      handler,
	}
	go func() {
		<-ctx.Done()
		_ = nc.Close()
	}()
	go c.readLoop()

	return c
}

func (c *client) Conn() net.Conn {
	return c.rtspSocket
}

func (c *client) Send(request Request) error {
	if setup, ok := request.(*SetupRequest); ok {
		if err := setup.Transport.RequireClientPort(); err != nil {
			return fmt.Errorf("failed to send %s: %w", request.Method(), err)
		}
	}

	c.Lock()
	defer c.Unlock()
	if c.ctx.Err() != nil {
		return fmt.Errorf("failed to send %s: %w", request.Method(), net.ErrClosed)
	}

	c.sequence++
	header := request.header()
	header.CSeq = c.sequence
	if err := c.requestQueue.Enqueue(header.CSeq, request.Method()); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	if err := request.Write(c.rtspSocket); err != nil {
		c.requestQueue.Remove(header.CSeq)
		return fmt.Errorf("failed to send %s: %w", request.Method(), err)
	}
	return nil
}

func (c *client) Close() error {
	c.cancel()
	return nil
}

func (c *client) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *client) readLoop() {
	reader := newMessageReader(c.rtspSocket)
	for {
		text, err := reader.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			if c.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.err = fmt.Errorf("failed to read control reply: %w", err)
			}
			c.errMu.Unlock()
			c.cancel()
			return
		}

		method, overtaken, err := c.correlate(text)
		for _, m := range overtaken {
			droppedReplies.WithLabelValues("overtaken").Inc()
			c.handler(m, nil, fmt.Errorf("%w: %s overtaken by a later reply", ErrReplyLost, m))
		}
		if err != nil {
			droppedReplies.WithLabelValues("uncorrelated").Inc()
			log.WithError(err).Warn("dropping reply")
			continue
		}

		reply, err := ParseReply(text, method)
		if err != nil {
			droppedReplies.WithLabelValues("malformed").Inc()
			log.WithError(err).Warnf("dropping %s reply", method)
			c.handler(method, nil, fmt.Errorf("%w: %w", ErrReplyLost, err))
			continue
		}
		c.handler(method, reply, nil)
	}
}

// correlate finds the request a reply answers, along with the older requests
// whose replies can no longer arrive. Success replies carry the CSeq of their
// request; error replies are matched by CSeq when present and to the oldest
// pending request otherwise.
func (c *client) correlate(text string) (Method, []Method, error) {
	seq := SequenceOf(text)
	if seq > 0 {
		return c.requestQueue.Dequeue(seq)
	}
	if isSuccess(text) {
		return "", nil, fmt.Errorf("%w: success reply without CSeq", ErrUncorrelatedReply)
	}
	method, err := c.requestQueue.Pop()
	return method, nil, err
}

func isSuccess(text string) bool {
	m, err := splitMessage(text)
	if err != nil {
		return false
	}
	parts := strings.SplitN(m.line, " ", 3)
	return len(parts) >= 2 && parts[1] == strconv.Itoa(http.StatusOK)
}

func newRequestQueue() *requestQueue {
	return &requestQueue{}
}

func (r *requestQueue) Enqueue(seq int, method Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.sequence == seq {
			return errors.New("duplicate key")
		}
	}
	r.items = append(r.items, pendingRequest{sequence: seq, method: method})
	return nil
}

// Dequeue removes the request with seq and every older one, whose replies
// can no longer arrive in order. The methods of the older requests are
// returned oldest first.
func (r *requestQueue) Dequeue(seq int) (Method, []Method, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, item := range r.items {
		if item.sequence == seq {
			var overtaken []Method
			for _, older := range r.items[:i] {
				overtaken = append(overtaken, older.method)
			}
			r.items = r.items[i+1:]
			return item.method, overtaken, nil
		}
	}
	return "", nil, fmt.Errorf("%w: CSeq %d", ErrUncorrelatedReply, seq)
}

func (r *requestQueue) Pop() (Method, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return "", fmt.Errorf("%w: nothing pending", ErrUncorrelatedReply)
	}
	item := r.items[0]
	r.items = r.items[1:]
	return item.method, nil
}

func (r *requestQueue) Remove(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, item := range r.items {
		if item.sequence == seq {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return
		}
	}
}

func (r *requestQueue) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
