package convo

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// topThreshold is the scroll offset (from the top, in surface units) under
// which a scroll event counts as "near top" and triggers a history load.
const topThreshold = 100

// LoadOlderFunc fetches the next older page of history. It returns whether
// more history remains beyond the fetched page.
type LoadOlderFunc func(ctx context.Context) (hasMore bool, err error)

// PaginationController manages backward history loading triggered by scroll
// position, preserving the visual scroll offset across the prepend. At most
// one load is in flight at a time.
type PaginationController struct {
	mu      sync.Mutex
	vp      Viewport
	load    LoadOlderFunc
	logger  *zap.Logger
	canLoad bool
	hasMore bool
	loading bool
}

// NewPaginationController creates a pagination controller over the given
// viewport. canLoad gates the whole mechanism (permission-denied users never
// trigger loads).
func NewPaginationController(vp Viewport, load LoadOlderFunc, canLoad bool, logger *zap.Logger) *PaginationController {
	return &PaginationController{
		vp:      vp,
		load:    load,
		logger:  logger,
		canLoad: canLoad,
	}
}

// SetHasMore records whether older history is known to exist.
func (p *PaginationController) SetHasMore(hasMore bool) {
	p.mu.Lock()
	p.hasMore = hasMore
	p.mu.Unlock()
}

// Loading reports whether an older-history load is in flight. The composed
// controller uses this to suppress its own scroll-to-bottom while a prepend
// is pending.
func (p *PaginationController) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// OnScroll handles a scroll event. It is a no-op unless loading is permitted,
// no load is in flight, more history exists and the viewport is near the top.
// On trigger it runs the load and, whether the load succeeds or fails,
// restores the scroll offset after the next render pass so the message the
// user was looking at stays put.
func (p *PaginationController) OnScroll(ctx context.Context) {
	p.mu.Lock()
	if !p.canLoad || p.loading || !p.hasMore {
		p.mu.Unlock()
		return
	}
	prevTop := p.vp.ScrollTop()
	if prevTop > topThreshold {
		p.mu.Unlock()
		return
	}
	prevHeight := p.vp.ScrollHeight()
	p.loading = true
	p.mu.Unlock()

	hasMore, err := p.load(ctx)
	if err != nil {
		p.logger.Warn("older-history load failed", zap.Error(err))
	} else {
		p.mu.Lock()
		p.hasMore = hasMore
		p.mu.Unlock()
	}

	// Restoration runs regardless of the load's outcome, and only after the
	// next render pass has committed the prepended content.
	p.vp.AfterRender(func() {
		newHeight := p.vp.ScrollHeight()
		p.vp.SetScrollTop(newHeight - prevHeight + prevTop)
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	})
}
