package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/logger"
)

// FollowLister lists the accounts the viewer follows on one network.
type FollowLister func(ctx context.Context) ([]domain.CanonicalUserID, error)

// FollowTarget holds the viewer's follow set. *domain.TimelineService
// implements it.
type FollowTarget interface {
	Follows() domain.FollowSet
	SetFollows(domain.FollowSet)
}

// FollowSync keeps the follow set in step with both networks.
type FollowSync struct {
	target   FollowTarget
	sources  map[domain.Platform]FollowLister
	self     []domain.CanonicalUserID
	onChange func()
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewFollowSync creates a follow sync. self holds the viewer's own accounts,
// which are always part of the set. onChange, if not nil, runs after every
// sync that changed the set.
func NewFollowSync(
	target FollowTarget,
	sources map[domain.Platform]FollowLister,
	self []domain.CanonicalUserID,
	onChange func(),
	log logger.Logger,
	interval time.Duration,
) *FollowSync {
	return &FollowSync{
		target:   target,
		sources:  sources,
		self:     slices.Clone(self),
		onChange: onChange,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start syncs immediately and then on every interval in the background.
func (f *FollowSync) Start(ctx context.Context) error {
	if err := f.Sync(ctx); err != nil {
		f.logger.Warn("initial follow sync failed", logger.Error(err))
	}

	ticker := time.NewTicker(f.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := f.Sync(ctx); err != nil {
					f.logger.Error("follow sync failed", logger.Error(err))
				}
			case <-f.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the follow sync.
func (f *FollowSync) Stop() {
	close(f.stopCh)
}

// Sync lists follows on every network and replaces the follow set. A network
// that fails keeps its previous follows; the failures are returned joined.
func (f *FollowSync) Sync(ctx context.Context) error {
	previous := f.target.Follows()
	ids := slices.Clone(f.self)
	var errs []error

	platforms := make([]domain.Platform, 0, len(f.sources))
	for p := range f.sources {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)

	for _, platform := range platforms {
		listed, err := f.sources[platform](ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s follows: %w", platform, err))
			for _, id := range previous.IDs() {
				if id.Platform == platform && !slices.Contains(f.self, id) {
					ids = append(ids, id)
				}
			}
			continue
		}
		f.logger.Debug("listed follows",
			logger.String("platform", string(platform)),
			logger.Int("count", len(listed)),
		)
		ids = append(ids, listed...)
	}

	next := domain.NewFollowSet(ids...)
	changed := !sameFollows(previous, next)
	f.target.SetFollows(next)

	if changed {
		f.logger.Info("follow set updated", logger.Int("follows", next.Len()))
		if f.onChange != nil {
			f.onChange()
		}
	}
	return errors.Join(errs...)
}

func sameFollows(a, b domain.FollowSet) bool {
	if a.Len() != b.Len() {
		return false
	}
	keys := func(s domain.FollowSet) []domain.ActorID {
		out := make([]domain.ActorID, 0, s.Len())
		for _, id := range s.IDs() {
			out = append(out, id.ActorID())
		}
		slices.Sort(out)
		return out
	}
	return slices.Equal(keys(a), keys(b))
}
