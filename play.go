package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bilbercode/framecast/internal/config"
	"github.com/bilbercode/framecast/internal/player"
	"github.com/bilbercode/framecast/internal/rtsp"
)

const cachePrefix = "ClientCache-"

var errNoResources = errors.New("server has no resources")

type playOptions struct {
	resource  string
	from      float64
	subtitles bool
}

// display stands in for a screen: it drives a player through one session
// and writes the current frame to the cache folder.
type display struct {
	player  player.Service
	cache   string
	options playOptions

	started   bool
	cacheFile string
	frames    int
}

func play(cfg *config.Config, options playOptions) error {
	if err := os.MkdirAll(cfg.Client.Cache, 0755); err != nil {
		return fmt.Errorf("failed to create cache folder: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the player outlives the signal context so the session can still be
	// torn down on interrupt
	p, err := player.New(context.Background(), player.Config{
		Server:       cfg.Client.Server,
		Ports:        cfg.Client.Ports,
		BindAttempts: cfg.Client.BindAttempts,
		Window:       cfg.Client.Window,
		EndGuard:     cfg.Client.EndGuard,
	})
	if err != nil {
		return err
	}
	defer p.Close()
	p.SetSubtitleMode(options.subtitles)

	group, ctx := errgroup.WithContext(ctx)
	events := make(chan *player.Event, 16)
	unsubscribe := p.Subscribe(func(e *player.Event) {
		if e.Type == player.EventTypeFrame {
			// a slow display skips frames
			select {
			case events <- e:
			default:
			}
			return
		}
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	d := &display{player: p, cache: cfg.Client.Cache, options: options}
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				d.stop()
				return nil
			case e := <-events:
				done, err := d.handle(e)
				if err != nil {
					d.stop()
					return err
				}
				if done {
					return nil
				}
			}
		}
	})

	return group.Wait()
}

// handle reacts to one player event and reports whether the session is over.
func (d *display) handle(e *player.Event) (bool, error) {
	switch e.Type {
	case player.EventTypeState:
		return d.onState(e.State)
	case player.EventTypeResources:
		return false, d.onResources(e.Resources)
	case player.EventTypeFrame:
		if d.cacheFile == "" {
			return false, nil
		}
		d.frames++
		if err := os.WriteFile(d.cacheFile, e.Frame.Data, 0644); err != nil {
			log.WithError(err).Warnf("failed to write frame %d", e.Frame.Number)
		}
		if d.frames%50 == 0 {
			log.Infof("frame %d, %.0f%% played", e.Frame.Number, d.player.Progress()*100)
		}
	case player.EventTypeSubtitle:
		if e.Subtitle != "" {
			log.WithField("subtitle", e.Subtitle).Info("cue")
		}
	case player.EventTypeError:
		var reply *rtsp.ErrorReply
		if errors.As(e.Err, &reply) {
			return false, fmt.Errorf("server rejected request: %w", reply)
		}
		return false, e.Err
	}
	return false, nil
}

func (d *display) onState(state rtsp.State) (bool, error) {
	log.Infof("player is %s", state)
	switch state {
	case rtsp.StateInit:
		if d.started {
			d.removeCache()
			return true, nil
		}
		return false, d.player.Describe()
	case rtsp.StateReady:
		d.started = true
		d.cacheFile = filepath.Join(d.cache, cachePrefix+d.player.Session()+".jpg")
		if d.options.from > 0 {
			return false, d.player.Seek(d.options.from)
		}
		return false, d.player.Play()
	}
	return false, nil
}

func (d *display) onResources(names []string) error {
	if len(names) == 0 {
		return errNoResources
	}
	name := d.options.resource
	if name == "" {
		name = names[0]
	}
	log.Infof("loading %s from %d resources", name, len(names))
	return d.player.Load(name)
}

// stop ends the session if one is open and removes the cached frame.
func (d *display) stop() {
	if d.player.State() != rtsp.StateInit {
		if err := d.player.Stop(); err != nil {
			log.WithError(err).Warn("failed to stop player")
		}
	}
	d.removeCache()
}

func (d *display) removeCache() {
	if d.cacheFile == "" {
		return
	}
	if err := os.Remove(d.cacheFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to remove cached frame")
	}
	d.cacheFile = ""
}
