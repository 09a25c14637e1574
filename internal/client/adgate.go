package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// AdGateConfig holds the ad gate tunables.
type AdGateConfig struct {
	// PollInterval is how often the local ad oracle is consulted.
	PollInterval time.Duration
}

// DefaultAdGateConfig returns the default ad gate configuration.
func DefaultAdGateConfig() AdGateConfig {
	return AdGateConfig{PollInterval: time.Second}
}

// AdGate layers ad-interstitial consensus on top of the reconciler.
// Ordinary sync is live only while every observed party is simultaneously
// not watching an ad; any disagreement discards the inbound event. There is
// no separate room ad status: consensus is inferred from the ad flag carried
// on the next event exchanged.
type AdGate struct {
	mu      sync.Mutex
	rec     *Reconciler
	oracle  AdOracle
	overlay Overlay
	clock   clockwork.Clock
	cfg     AdGateConfig
	emit    func(protocol.VideoEvent)

	localAd       bool
	lastBroadcast bool
	overlayShown  bool
}

// NewAdGate creates an ad gate over the given reconciler. The emitter is
// invoked without the gate's lock held.
func NewAdGate(rec *Reconciler, oracle AdOracle, overlay Overlay, clock clockwork.Clock, cfg AdGateConfig, emit func(protocol.VideoEvent)) *AdGate {
	return &AdGate{
		rec:     rec,
		oracle:  oracle,
		overlay: overlay,
		clock:   clock,
		cfg:     cfg,
		emit:    emit,
	}
}

// Run polls the ad oracle until the context is cancelled.
func (g *AdGate) Run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.poll()
		}
	}
}

// poll refreshes the local ad state and broadcasts transitions. Entering an
// ad forces every peer to pause immediately; leaving one re-announces the
// player's actual state so normal reconciliation resumes. The gate's lock is
// never held across the reconciler call or the emit.
func (g *AdGate) poll() {
	ad := g.oracle.IsAdPlaying()

	g.mu.Lock()
	g.localAd = ad
	changed := ad != g.lastBroadcast
	g.mu.Unlock()
	if !changed {
		return
	}

	pos, paused, rate, ok := g.rec.PlayerSnapshot()
	if !ok {
		// Nothing to announce yet; the transition stays pending until a
		// player is attached.
		return
	}

	g.mu.Lock()
	if ad == g.lastBroadcast {
		g.mu.Unlock()
		return
	}
	g.lastBroadcast = ad
	g.mu.Unlock()

	if ad {
		log.Info().Msg("local ad started, pausing peers")
		g.emit(protocol.VideoEvent{
			EventType:    protocol.EventPause,
			CurrentTime:  pos,
			Paused:       true,
			Timestamp:    g.clock.Now().UnixMilli(),
			IsWatchingAd: protocol.Bool(true),
		})
		return
	}

	log.Info().Bool("paused", paused).Msg("local ad ended, resuming sync")
	ev := protocol.VideoEvent{
		CurrentTime:  pos,
		Paused:       paused,
		PlaybackRate: rate,
		Timestamp:    g.clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(false),
	}
	if paused {
		ev.EventType = protocol.EventPause
	} else {
		ev.EventType = protocol.EventPlay
	}
	g.emit(ev)
}

// LocalAd reports the last polled local ad state, used to annotate ordinary
// outbound events.
func (g *AdGate) LocalAd() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.localAd
}

// HandleEvent gates an inbound video event before normal reconciliation.
func (g *AdGate) HandleEvent(ev *protocol.VideoEvent) {
	remoteAd := ev.IsWatchingAd != nil && *ev.IsWatchingAd
	if g.admit(remoteAd) {
		g.rec.ApplyEvent(ev)
	}
}

// HandleState gates an inbound state snapshot before normal reconciliation.
func (g *AdGate) HandleState(st *protocol.VideoState) {
	remoteAd := st.IsWatchingAd != nil && *st.IsWatchingAd
	if g.admit(remoteAd) {
		g.rec.ApplyState(st)
	}
}

// admit evaluates the consensus table for one inbound message and performs
// the overlay / forced-pause side effects. It returns true only when normal
// reconciliation should proceed.
func (g *AdGate) admit(remoteAd bool) bool {
	g.mu.Lock()
	local := g.localAd
	switch {
	case !local && remoteAd:
		// A peer entered an ad: hold here until they come back.
		g.showOverlayLocked()
		g.mu.Unlock()
		g.rec.ForcePause()
		return false
	case local && !remoteAd:
		// Never let peers pull us out of our own ad.
		g.mu.Unlock()
		return false
	case local && remoteAd:
		g.hideOverlayLocked()
		g.mu.Unlock()
		return false
	default:
		g.hideOverlayLocked()
		g.mu.Unlock()
		return true
	}
}

func (g *AdGate) showOverlayLocked() {
	if g.overlayShown {
		return
	}
	g.overlayShown = true
	if g.overlay != nil {
		g.overlay.Show()
	}
}

func (g *AdGate) hideOverlayLocked() {
	if !g.overlayShown {
		return
	}
	g.overlayShown = false
	if g.overlay != nil {
		g.overlay.Hide()
	}
}
