package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vidsync/vidsync/internal/protocol"
)

type fakeOracle struct {
	ad bool
}

func (o *fakeOracle) IsAdPlaying() bool { return o.ad }

type fakeOverlay struct {
	shows int
	hides int
	shown bool
}

func (o *fakeOverlay) Show() {
	o.shows++
	o.shown = true
}

func (o *fakeOverlay) Hide() {
	o.hides++
	o.shown = false
}

func newTestAdGate(player Player) (*AdGate, *Reconciler, *fakeOracle, *fakeOverlay, *emitRecorder, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	rec := newEmitRecorder()
	r := NewReconciler(DefaultReconcilerConfig(), clock, rec.emit)
	if player != nil {
		r.Attach(player)
	}
	oracle := &fakeOracle{}
	overlay := &fakeOverlay{}
	gate := NewAdGate(r, oracle, overlay, clock, DefaultAdGateConfig(), rec.emit)
	return gate, r, oracle, overlay, rec, clock
}

func TestPollBroadcastsAdStart(t *testing.T) {
	player := newFakePlayer(30.0, false)
	gate, _, oracle, _, rec, _ := newTestAdGate(player)

	oracle.ad = true
	gate.poll()

	ev := rec.next(t)
	if ev.EventType != protocol.EventPause {
		t.Fatalf("event type = %q, want pause", ev.EventType)
	}
	if ev.IsWatchingAd == nil || !*ev.IsWatchingAd {
		t.Fatalf("event = %+v, want isWatchingAd=true", ev)
	}

	// Steady state: no re-broadcast while the ad keeps playing.
	gate.poll()
	rec.expectNone(t)
}

func TestPollBroadcastsAdEndMatchingPlayerState(t *testing.T) {
	player := newFakePlayer(30.0, false)
	gate, _, oracle, _, rec, _ := newTestAdGate(player)

	oracle.ad = true
	gate.poll()
	rec.next(t)

	// Ad over while the local player is actually playing.
	oracle.ad = false
	gate.poll()
	ev := rec.next(t)
	if ev.EventType != protocol.EventPlay {
		t.Fatalf("event type = %q, want play (player is playing)", ev.EventType)
	}
	if ev.IsWatchingAd == nil || *ev.IsWatchingAd {
		t.Fatalf("event = %+v, want isWatchingAd=false", ev)
	}

	// And the paused variant.
	oracle.ad = true
	gate.poll()
	rec.next(t)
	player.paused = true
	oracle.ad = false
	gate.poll()
	ev = rec.next(t)
	if ev.EventType != protocol.EventPause {
		t.Fatalf("event type = %q, want pause (player is paused)", ev.EventType)
	}
}

func TestGateRemoteAdPausesAndDiscards(t *testing.T) {
	player := newFakePlayer(10.0, false)
	gate, _, _, overlay, _, clock := newTestAdGate(player)

	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPause,
		CurrentTime:  99.0,
		Paused:       true,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})

	if !player.paused {
		t.Fatal("local player should be force-paused when a peer enters an ad")
	}
	if !overlay.shown {
		t.Fatal("overlay should be shown")
	}
	// Discarded entirely: the event's position must not be applied.
	if len(player.seeks) != 0 {
		t.Fatalf("seeks = %v, want none (event discarded)", player.seeks)
	}
}

func TestGateLocalAdDiscardsRemoteEvents(t *testing.T) {
	player := newFakePlayer(10.0, true)
	gate, _, oracle, overlay, _, clock := newTestAdGate(player)

	oracle.ad = true
	gate.poll()

	gate.HandleEvent(&protocol.VideoEvent{
		EventType:   protocol.EventPlay,
		CurrentTime: 50.0,
		Timestamp:   clock.Now().UnixMilli(),
	})

	if !player.paused || len(player.seeks) != 0 {
		t.Fatalf("remote event leaked through local ad gate: paused=%v seeks=%v", player.paused, player.seeks)
	}
	if overlay.shown {
		t.Fatal("overlay is for remote ads, not local ones")
	}
}

func TestGateBothWatchingHidesOverlayStillDiscards(t *testing.T) {
	player := newFakePlayer(10.0, true)
	gate, _, oracle, overlay, rec, clock := newTestAdGate(player)

	// Peer enters an ad first.
	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPause,
		Paused:       true,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})
	if !overlay.shown {
		t.Fatal("overlay should be shown")
	}

	// Then we enter one too: no reason to keep the overlay up.
	oracle.ad = true
	gate.poll()
	rec.next(t)

	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPause,
		CurrentTime:  70.0,
		Paused:       true,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})
	if overlay.shown {
		t.Fatal("overlay should be hidden while both are mid-ad")
	}
	if len(player.seeks) != 0 {
		t.Fatalf("seeks = %v, want none (no cross-sync while both mid-ad)", player.seeks)
	}
}

func TestGateConsensusRestoresNormalSync(t *testing.T) {
	player := newFakePlayer(10.0, false)
	gate, _, _, overlay, _, clock := newTestAdGate(player)

	// Peer in ad: held.
	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPause,
		Paused:       true,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})
	if !player.paused {
		t.Fatal("player should be held paused")
	}

	// Peer's ad ends: overlay drops and the play event applies normally.
	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPlay,
		CurrentTime:  25.0,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(false),
	})
	if overlay.shown {
		t.Fatal("overlay should be hidden once consensus is restored")
	}
	if player.paused {
		t.Fatal("player should resume with the peer")
	}
	if len(player.seeks) != 1 || player.seeks[0] != 25.0 {
		t.Fatalf("seeks = %v, want one seek to 25.0", player.seeks)
	}
}

func TestGateStateSnapshotsAreGatedToo(t *testing.T) {
	player := newFakePlayer(10.0, false)
	gate, _, _, overlay, _, clock := newTestAdGate(player)

	gate.HandleState(&protocol.VideoState{
		CurrentTime:  80.0,
		Paused:       false,
		PlaybackRate: 1.0,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})

	if !player.paused || !overlay.shown {
		t.Fatalf("gated snapshot not held: paused=%v overlay=%v", player.paused, overlay.shown)
	}
	if len(player.seeks) != 0 {
		t.Fatalf("seeks = %v, want none", player.seeks)
	}
}

func TestRunPollsOnInterval(t *testing.T) {
	player := newFakePlayer(30.0, false)
	gate, _, oracle, _, rec, clock := newTestAdGate(player)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gate.Run(ctx)

	// Wait until Run is parked on the ticker before advancing.
	clock.BlockUntil(1)
	oracle.ad = true
	clock.Advance(DefaultAdGateConfig().PollInterval)

	ev := rec.next(t)
	if ev.IsWatchingAd == nil || !*ev.IsWatchingAd {
		t.Fatalf("event = %+v, want ad-start broadcast from poll tick", ev)
	}
}

// flickerOracle alternates its answer on every poll so concurrent pollers
// keep crossing the transition paths.
type flickerOracle struct {
	n atomic.Int64
}

func (o *flickerOracle) IsAdPlaying() bool { return o.n.Add(1)%2 == 0 }

func TestPollAndLocalEventsDoNotWedge(t *testing.T) {
	clock := clockwork.NewRealClock()
	drop := func(protocol.VideoEvent) {}
	rec := NewReconciler(DefaultReconcilerConfig(), clock, drop)
	rec.Attach(newFakePlayer(10.0, false))
	gate := NewAdGate(rec, &flickerOracle{}, &fakeOverlay{}, clock, DefaultAdGateConfig(), drop)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				gate.poll()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				rec.OnLocalPlay()
				rec.OnLocalPause()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ad poll and local player events wedged against each other")
	}
}

func TestPollTransitionWaitsForPlayer(t *testing.T) {
	gate, rec, oracle, _, emitted, _ := newTestAdGate(nil)

	// Transition observed with no player attached: nothing can be
	// announced, but the transition must not be swallowed.
	oracle.ad = true
	gate.poll()
	emitted.expectNone(t)

	rec.Attach(newFakePlayer(30.0, false))
	gate.poll()
	ev := emitted.next(t)
	if ev.EventType != protocol.EventPause || ev.IsWatchingAd == nil || !*ev.IsWatchingAd {
		t.Fatalf("event = %+v, want the pending ad-start broadcast", ev)
	}
}

func TestMidAdJoinerHeldOnFirstInbound(t *testing.T) {
	// A session joining while a peer is mid-ad learns about it from the
	// very next gated event; there is no separate room ad status.
	player := newFakePlayer(0, false)
	gate, _, _, overlay, _, clock := newTestAdGate(player)

	gate.HandleEvent(&protocol.VideoEvent{
		EventType:    protocol.EventPause,
		CurrentTime:  120.0,
		Paused:       true,
		Timestamp:    clock.Now().UnixMilli(),
		IsWatchingAd: protocol.Bool(true),
	})

	if !player.paused || !overlay.shown {
		t.Fatalf("mid-ad joiner not held: paused=%v overlay=%v", player.paused, overlay.shown)
	}
}
