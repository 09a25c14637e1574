package client

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/protocol"
)

// ReconcilerConfig holds the sync tunables.
type ReconcilerConfig struct {
	// SeekThreshold is the minimum time discrepancy, in seconds, before a
	// correction seek is forced or a local seek is considered significant.
	SeekThreshold float64
	// SeekDebounce is the quiet period after the last seek signal before an
	// outbound seek event is emitted.
	SeekDebounce time.Duration
	// EchoCooldown is how long after a remote apply the player's own event
	// callbacks are still treated as self-caused.
	EchoCooldown time.Duration
}

// DefaultReconcilerConfig returns the default sync tunables.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		SeekThreshold: 1.0,
		SeekDebounce:  300 * time.Millisecond,
		EchoCooldown:  400 * time.Millisecond,
	}
}

// Reconciler owns one local player, turning its events into outbound sync
// events and applying inbound events to it. All of its state is guarded by a
// single mutex; the local-event path and the remote-apply path never
// interleave.
type Reconciler struct {
	mu    sync.Mutex
	cfg   ReconcilerConfig
	clock clockwork.Clock
	emit  func(protocol.VideoEvent)

	player Player

	// Remote-apply guard. While applying > 0, or until echoUntil has
	// passed, locally observed player events are echoes of our own
	// mutations and must not be rebroadcast.
	applying  int
	echoUntil time.Time

	lastReconciled float64

	seekTimer clockwork.Timer
	seekGen   int
}

// NewReconciler creates a reconciler that sends outbound events through
// emit. The emitter is invoked after the reconciler releases its lock, so it
// may read back into the reconciler or the ad gate.
func NewReconciler(cfg ReconcilerConfig, clock clockwork.Clock, emit func(protocol.VideoEvent)) *Reconciler {
	return &Reconciler{cfg: cfg, clock: clock, emit: emit}
}

// Attach binds the reconciler to a player, superseding any previous one.
func (r *Reconciler) Attach(p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelSeekLocked()
	r.player = p
	r.lastReconciled = p.Position()
	log.Debug().Float64("position", r.lastReconciled).Msg("reconciler attached to player")
}

// Detach unbinds the current player. Pending debounced seeks are discarded.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelSeekLocked()
	r.player = nil
}

// Attached reports whether a player is currently bound.
func (r *Reconciler) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player != nil
}

// PlayerSnapshot returns the bound player's current state.
func (r *Reconciler) PlayerSnapshot() (position float64, paused bool, rate float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return 0, false, 0, false
	}
	return r.player.Position(), r.player.Paused(), r.player.Rate(), true
}

// OnLocalPlay handles a play event observed on the local player.
func (r *Reconciler) OnLocalPlay() {
	r.mu.Lock()
	if r.player == nil || r.suppressedLocked() {
		r.mu.Unlock()
		return
	}
	ev := protocol.VideoEvent{
		EventType:    protocol.EventPlay,
		CurrentTime:  r.player.Position(),
		PlaybackRate: r.player.Rate(),
		Timestamp:    r.clock.Now().UnixMilli(),
	}
	r.mu.Unlock()
	r.emit(ev)
}

// OnLocalPause handles a pause event observed on the local player.
func (r *Reconciler) OnLocalPause() {
	r.mu.Lock()
	if r.player == nil || r.suppressedLocked() {
		r.mu.Unlock()
		return
	}
	ev := protocol.VideoEvent{
		EventType:   protocol.EventPause,
		CurrentTime: r.player.Position(),
		Paused:      true,
		Timestamp:   r.clock.Now().UnixMilli(),
	}
	r.mu.Unlock()
	r.emit(ev)
}

// OnLocalRateChange handles a playback rate change on the local player.
func (r *Reconciler) OnLocalRateChange() {
	r.mu.Lock()
	if r.player == nil || r.suppressedLocked() {
		r.mu.Unlock()
		return
	}
	ev := protocol.VideoEvent{
		EventType:    protocol.EventRateChange,
		PlaybackRate: r.player.Rate(),
		Timestamp:    r.clock.Now().UnixMilli(),
	}
	r.mu.Unlock()
	r.emit(ev)
}

// OnLocalSeeked handles a seeked signal. Signals are debounced; once the
// quiet period elapses the move is emitted only if it is significant,
// filtering out sub-threshold jitter from ordinary playback progression.
func (r *Reconciler) OnLocalSeeked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil || r.suppressedLocked() {
		return
	}

	r.cancelSeekLocked()
	r.seekGen++
	gen := r.seekGen
	r.seekTimer = r.clock.AfterFunc(r.cfg.SeekDebounce, func() {
		r.flushSeek(gen)
	})
}

func (r *Reconciler) flushSeek(gen int) {
	r.mu.Lock()
	if gen != r.seekGen || r.player == nil {
		r.mu.Unlock()
		return
	}
	r.seekTimer = nil

	cur := r.player.Position()
	if math.Abs(cur-r.lastReconciled) <= r.cfg.SeekThreshold {
		r.mu.Unlock()
		return
	}
	r.lastReconciled = cur
	ev := protocol.VideoEvent{
		EventType:   protocol.EventSeek,
		CurrentTime: cur,
		Paused:      r.player.Paused(),
		Timestamp:   r.clock.Now().UnixMilli(),
	}
	r.mu.Unlock()
	r.emit(ev)
}

func (r *Reconciler) cancelSeekLocked() {
	if r.seekTimer != nil {
		r.seekTimer.Stop()
		r.seekTimer = nil
	}
	r.seekGen++
}

// ApplyEvent applies a remote video event to the local player.
func (r *Reconciler) ApplyEvent(ev *protocol.VideoEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return
	}
	release := r.acquireGuardLocked()
	defer release()

	switch ev.EventType {
	case protocol.EventPlay:
		r.syncTimeLocked(ev.CurrentTime, ev.Timestamp, false)
		if ev.PlaybackRate > 0 && r.player.Rate() != ev.PlaybackRate {
			r.player.SetRate(ev.PlaybackRate)
		}
		r.playLocked()
	case protocol.EventPause:
		if !r.player.Paused() {
			r.player.Pause()
		}
		r.syncTimeLocked(ev.CurrentTime, ev.Timestamp, true)
	case protocol.EventSeek:
		r.syncTimeLocked(ev.CurrentTime, ev.Timestamp, ev.Paused)
		if ev.Paused {
			if !r.player.Paused() {
				r.player.Pause()
			}
		} else {
			r.playLocked()
		}
	case protocol.EventRateChange:
		if ev.PlaybackRate > 0 && r.player.Rate() != ev.PlaybackRate {
			r.player.SetRate(ev.PlaybackRate)
		}
	default:
		log.Debug().Str("event_type", string(ev.EventType)).Msg("ignoring unknown video event")
	}
}

// ApplyState applies a remote full playback snapshot to the local player.
func (r *Reconciler) ApplyState(st *protocol.VideoState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return
	}
	release := r.acquireGuardLocked()
	defer release()

	if st.PlaybackRate > 0 && r.player.Rate() != st.PlaybackRate {
		r.player.SetRate(st.PlaybackRate)
	}
	r.syncTimeLocked(st.CurrentTime, st.Timestamp, st.Paused)
	if st.Paused {
		if !r.player.Paused() {
			r.player.Pause()
		}
	} else {
		r.playLocked()
	}
}

// ForcePause pauses the local player under the remote-apply guard so the
// resulting pause event is not rebroadcast. Used by the ad gate.
func (r *Reconciler) ForcePause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return
	}
	release := r.acquireGuardLocked()
	defer release()

	if !r.player.Paused() {
		r.player.Pause()
	}
}

// syncTimeLocked corrects the player's position toward the remote position.
// When the remote state is playing, the wire latency since capture is added
// to its position; a paused video's position does not advance. Corrections
// below the threshold are skipped so ordinary sync traffic does not stutter
// playback.
func (r *Reconciler) syncTimeLocked(remoteTime float64, timestampMillis int64, remotePaused bool) {
	adjusted := remoteTime
	if !remotePaused && timestampMillis > 0 {
		adjusted += float64(r.clock.Now().UnixMilli()-timestampMillis) / 1000.0
	}
	if adjusted < 0 {
		adjusted = 0
	}
	if math.Abs(r.player.Position()-adjusted) > r.cfg.SeekThreshold {
		r.player.SetPosition(adjusted)
	}
	r.lastReconciled = adjusted
}

func (r *Reconciler) playLocked() {
	if !r.player.Paused() {
		return
	}
	if err := r.player.Play(); err != nil {
		// Autoplay policy rejection. The next inbound or local event may
		// re-trigger playback.
		log.Warn().Err(err).Msg("player play() rejected")
	}
}

// acquireGuardLocked marks the start of a programmatic player mutation. The
// returned release keeps echo suppression active for the configured
// cooldown, because the player's own event callbacks can fire after the
// mutation returns.
func (r *Reconciler) acquireGuardLocked() func() {
	r.applying++
	return func() {
		r.applying--
		r.echoUntil = r.clock.Now().Add(r.cfg.EchoCooldown)
	}
}

func (r *Reconciler) suppressedLocked() bool {
	return r.applying > 0 || r.clock.Now().Before(r.echoUntil)
}
