package client

// Player is the capability surface of a local video player. Implementations
// wrap whatever the embedding runtime exposes (a DOM video element, a native
// player). Mutations must not synchronously invoke the reconciler's local
// event callbacks; player event dispatch is expected to be asynchronous.
type Player interface {
	Position() float64
	SetPosition(seconds float64)
	Rate() float64
	SetRate(rate float64)
	Paused() bool
	// Play may fail under platform autoplay policy. Such failures are
	// logged and not retried automatically.
	Play() error
	Pause()
}

// AdOracle reports whether an unskippable ad interstitial is currently
// playing locally. It is polled at a fixed interval by the ad gate.
type AdOracle interface {
	IsAdPlaying() bool
}

// Overlay controls the "peer is watching an ad" indicator.
type Overlay interface {
	Show()
	Hide()
}

// Navigator opens a page address when the host publishes a new URL.
type Navigator interface {
	Navigate(url string) error
}

// PlayerCandidate describes one discoverable player on a page.
type PlayerCandidate struct {
	Player  Player
	Width   float64
	Height  float64
	Visible bool
}

// DefaultMinPlayerArea is the minimum width*height a candidate must have to
// be considered when several players are present.
const DefaultMinPlayerArea = 160 * 90

// PickPlayer selects the player to reconcile against. A lone candidate is
// always chosen; among several, the largest visible candidate at or above
// minArea wins.
func PickPlayer(candidates []PlayerCandidate, minArea float64) (Player, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if len(candidates) == 1 {
		return candidates[0].Player, true
	}

	var best Player
	var bestArea float64
	for _, c := range candidates {
		if !c.Visible {
			continue
		}
		area := c.Width * c.Height
		if area < minArea {
			continue
		}
		if best == nil || area > bestArea {
			best = c.Player
			bestArea = area
		}
	}
	return best, best != nil
}
