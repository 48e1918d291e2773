package rtsp

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

const (
	minSessionID = 10000000
	maxSessionID = 99999999

	allocateAttempts = 64
)

// Registry hands out session ids that are unique among live sessions. One
// registry is shared by every connection of a server.
type Registry struct {
	sync.Mutex
	rand *rand.Rand
	live map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		live: make(map[string]struct{}),
	}
}

// Allocate reserves a fresh 8 digit id.
func (r *Registry) Allocate() (string, error) {
	r.Lock()
	defer r.Unlock()
	for i := 0; i < allocateAttempts; i++ {
		id := strconv.Itoa(minSessionID + r.rand.Intn(maxSessionID-minSessionID+1))
		if _, taken := r.live[id]; taken {
			continue
		}
		r.live[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrRegistryExhausted, allocateAttempts)
}

// Release returns id to the pool. Releasing an unknown id is a no-op.
func (r *Registry) Release(id string) {
	r.Lock()
	defer r.Unlock()
	delete(r.live, id)
}

func (r *Registry) isLive(id string) bool {
	r.Lock()
	defer r.Unlock()
	_, ok := r.live[id]
	return ok
}

func (r *Registry) Len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.live)
}
