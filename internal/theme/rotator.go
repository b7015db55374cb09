// Package theme rotates the decorative background images of the light and
// dark themes and derives the per-request theme state.
package theme

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"wa-dashboard/internal/repo"
)

// Images loads the background image catalogue.
type Images interface {
	ListBackgrounds(ctx context.Context) ([]repo.BackgroundImage, error)
}

// Rotator advances the current background of each theme on a fixed
// interval and notifies subscribers.
type Rotator struct {
	images   Images
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	sets    map[string][]repo.BackgroundImage
	index   map[string]int
	subs    map[string]map[int]chan repo.BackgroundImage
	nextSub int

	scheduler gocron.Scheduler
}

// NewRotator builds a stopped rotator. A non-positive interval means one minute.
func NewRotator(images Images, interval time.Duration, logger *slog.Logger) *Rotator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Rotator{
		images:   images,
		interval: interval,
		logger:   logger.With("component", "theme"),
		sets:     map[string][]repo.BackgroundImage{},
		index:    map[string]int{},
		subs:     map[string]map[int]chan repo.BackgroundImage{},
	}
}

// Start loads the catalogue and schedules the rotation job.
func (r *Rotator) Start(ctx context.Context) error {
	if err := r.Reload(ctx); err != nil {
		r.logger.Warn("initial background load failed", "error", err)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if err := r.Reload(context.Background()); err != nil {
				r.logger.Warn("background reload failed", "error", err)
			}
			r.Advance()
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule rotation: %w", err)
	}
	s.Start()
	r.mu.Lock()
	r.scheduler = s
	r.mu.Unlock()
	r.logger.Info("background rotation started", "interval", r.interval)
	return nil
}

// Stop shuts the scheduler down and closes every subscription.
func (r *Rotator) Stop() error {
	r.mu.Lock()
	s := r.scheduler
	r.scheduler = nil
	for theme, subs := range r.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(r.subs, theme)
	}
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Reload replaces the catalogue, keeping each theme's position when possible.
func (r *Rotator) Reload(ctx context.Context) error {
	all, err := r.images.ListBackgrounds(ctx)
	if err != nil {
		return err
	}
	sets := map[string][]repo.BackgroundImage{}
	for _, img := range all {
		sets[img.Theme] = append(sets[img.Theme], img)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = sets
	for theme, idx := range r.index {
		if n := len(sets[theme]); n == 0 || idx >= n {
			r.index[theme] = 0
		}
	}
	return nil
}

// Advance moves every theme to its next image and publishes it.
func (r *Rotator) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for theme, set := range r.sets {
		if len(set) == 0 {
			continue
		}
		r.index[theme] = (r.index[theme] + 1) % len(set)
		current := set[r.index[theme]]
		for _, ch := range r.subs[theme] {
			publish(ch, current)
		}
	}
}

// publish delivers img, replacing an unread older value.
func publish(ch chan repo.BackgroundImage, img repo.BackgroundImage) {
	select {
	case ch <- img:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- img:
	default:
	}
}

// Current returns the current image of theme.
func (r *Rotator) Current(theme string) (repo.BackgroundImage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sets[theme]
	if len(set) == 0 {
		return repo.BackgroundImage{}, false
	}
	return set[r.index[theme]%len(set)], true
}

// Images returns the images of theme in rotation order.
func (r *Rotator) Images(theme string) []repo.BackgroundImage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repo.BackgroundImage, len(r.sets[theme]))
	copy(out, r.sets[theme])
	return out
}

// Subscribe streams the images of theme as they rotate. The current image,
// if any, is delivered first. cancel is idempotent and closes the channel.
func (r *Rotator) Subscribe(theme string) (<-chan repo.BackgroundImage, func()) {
	ch := make(chan repo.BackgroundImage, 1)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	if r.subs[theme] == nil {
		r.subs[theme] = map[int]chan repo.BackgroundImage{}
	}
	r.subs[theme][id] = ch
	if set := r.sets[theme]; len(set) > 0 {
		ch <- set[r.index[theme]%len(set)]
	}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if subs, ok := r.subs[theme]; ok {
				if c, ok := subs[id]; ok {
					close(c)
					delete(subs, id)
				}
			}
		})
	}
	return ch, cancel
}
