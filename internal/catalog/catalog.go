package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bilbercode/framecast/internal/rtsp"
	"github.com/bilbercode/framecast/internal/stream"
)

const subtitleFile = "subtitles.yaml"

var (
	ErrInvalidName   = errors.New("invalid resource name")
	ErrNotFound      = errors.New("resource not found")
	ErrEmptyResource = errors.New("resource has no frames")
	ErrFrameRange    = errors.New("frame out of range")
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "catalog_cache_lookups",
	Namespace: "framecast",
	Help:      "frame cache lookups by result",
}, []string{"result"})

var _ rtsp.Library = (*Catalog)(nil)

// Cue shows Text for frames From through To inclusive.
type Cue struct {
	From int    `yaml:"from"`
	To   int    `yaml:"to"`
	Text string `yaml:"text"`
}

// Catalog serves the resources found under a media folder. Each resource is
// a directory of image files played in name order.
type Catalog struct {
	sync.Mutex
	mediaFolder string
	cache       *lru.Cache
}

type frameKey struct {
	resource string
	frame    int
}

// Open serves mediaFolder, keeping up to cacheSize frames in memory. A zero
// cacheSize leaves the frame cache unbounded.
func Open(mediaFolder string, cacheSize int) (*Catalog, error) {
	info, err := os.Stat(mediaFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to open media folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media folder %s is not a directory", mediaFolder)
	}
	if cacheSize < 0 {
		cacheSize = 0
	}
	return &Catalog{
		mediaFolder: mediaFolder,
		cache:       lru.New(cacheSize),
	}, nil
}

func (c *Catalog) List() ([]string, error) {
	dir, err := os.ReadDir(c.mediaFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to list media folder content: %w", err)
	}

	var names []string
	for _, entry := range dir {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (c *Catalog) Open(name string) (stream.Source, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	folder := filepath.Join(c.mediaFolder, name)
	dir, err := os.ReadDir(folder)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	case err != nil:
		return nil, fmt.Errorf("failed to read resource %s: %w", name, err)
	}

	r := &resource{catalog: c, name: name, folder: folder}
	for _, entry := range dir {
		if entry.IsDir() || !isFrame(entry.Name()) {
			continue
		}
		r.frames = append(r.frames, entry.Name())
	}
	if len(r.frames) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResource, name)
	}
	sort.Strings(r.frames)

	r.cues, err = loadCues(filepath.Join(folder, subtitleFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load subtitles for %s: %w", name, err)
	}

	log.WithFields(log.Fields{
		"resource": name,
		"frames":   len(r.frames),
		"cues":     len(r.cues),
	}).Debug("resource opened")
	return r, nil
}

func (c *Catalog) cached(key frameKey) ([]byte, bool) {
	c.Lock()
	defer c.Unlock()
	value, ok := c.cache.Get(key)
	if !ok {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return value.([]byte), true
}

func (c *Catalog) store(key frameKey, data []byte) {
	c.Lock()
	defer c.Unlock()
	c.cache.Add(key, data)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func isFrame(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func loadCues(filename string) ([]Cue, error) {
	b, err := os.ReadFile(filename)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}

	var cues []Cue
	if err := yaml.Unmarshal(b, &cues); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	for i, cue := range cues {
		if cue.From < 1 || cue.To < cue.From {
			return nil, fmt.Errorf("cue %d has invalid range %d-%d", i, cue.From, cue.To)
		}
	}
	return cues, nil
}

type resource struct {
	catalog *Catalog
	name    string
	folder  string
	frames  []string
	cues    []Cue
}

func (r *resource) Len() int {
	return len(r.frames)
}

func (r *resource) Frame(n int) ([]byte, error) {
	if n < 1 || n > len(r.frames) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameRange, n, len(r.frames))
	}
	key := frameKey{resource: r.name, frame: n}
	if data, ok := r.catalog.cached(key); ok {
		return data, nil
	}

	data, err := os.ReadFile(filepath.Join(r.folder, r.frames[n-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %d of %s: %w", n, r.name, err)
	}
	r.catalog.store(key, data)
	return data, nil
}

func (r *resource) Subtitle(n int) string {
	for _, cue := range r.cues {
		if n >= cue.From && n <= cue.To {
			return cue.Text
		}
	}
	return ""
}
