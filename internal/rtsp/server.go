package rtsp

import (
	"context"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

type server struct {
	library  Library
	sessions *Registry
	config   ServerConfig
	wg       sync.WaitGroup
}

func NewServer(library Library, sessions *Registry, config ServerConfig) Server {
	return &server{
		library:  library,
		sessions: sessions,
		config:   config,
	}
}

func (s *server) Start(ctx context.Context, addr string) error {
	conf := net.ListenConfig{}
	listener, err := conf.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", addr, err)
	}
	log.Infof("control channel listening on %s", listener.Addr())
	return s.Serve(ctx, listener)
}

// Serve accepts connections until ctx is cancelled, then waits for every
// open session to be torn down.
func (s *server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer s.wg.Wait()

	for {
		nc, err := listener.Accept()
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		default:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handle(ctx, nc)
			}()
		}
	}
}

func (s *server) handle(ctx context.Context, nc net.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			nc.Close()
		case <-done:
		}
	}()

	newSession(s, nc).serve(ctx)
}
