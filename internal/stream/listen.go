package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"

	log "github.com/sirupsen/logrus"
)

var ErrBindExhausted = errors.New("no UDP port available")

// PortRange bounds the ports a data socket may bind. The zero range binds
// an ephemeral port.
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r PortRange) pick() int {
	if r.Min == 0 && r.Max == 0 {
		return 0
	}
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.Intn(r.Max-r.Min+1)
}

// Listen binds a UDP socket on a random port of ports, trying at most
// attempts ports before giving up with ErrBindExhausted.
func Listen(ctx context.Context, ports PortRange, attempts int) (*net.UDPConn, error) {
	if attempts < 1 {
		attempts = 1
	}
	conf := net.ListenConfig{}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		port := ports.pick()
		pc, err := conf.ListenPacket(ctx, "udp", fmt.Sprintf(":%d", port))
		if err != nil {
			bindFailures.Inc()
			log.WithError(err).Debugf("failed to bind UDP port %d", port)
			lastErr = err
			continue
		}
		return pc.(*net.UDPConn), nil
	}
	return nil, fmt.Errorf("%w in %d-%d after %d attempts: %v", ErrBindExhausted, ports.Min, ports.Max, attempts, lastErr)
}
