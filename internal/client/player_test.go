package client

import "testing"

func TestPickPlayerEmpty(t *testing.T) {
	if p, ok := PickPlayer(nil, DefaultMinPlayerArea); ok || p != nil {
		t.Fatalf("PickPlayer(nil) = %v, %v; want nil, false", p, ok)
	}
}

func TestPickPlayerLoneCandidateAlwaysWins(t *testing.T) {
	// A lone candidate is chosen even if it is tiny or hidden.
	lone := newFakePlayer(0, true)
	cands := []PlayerCandidate{{Player: lone, Width: 10, Height: 10, Visible: false}}
	p, ok := PickPlayer(cands, DefaultMinPlayerArea)
	if !ok || p != lone {
		t.Fatalf("PickPlayer = %v, %v; want the lone candidate", p, ok)
	}
}

func TestPickPlayerPrefersLargestVisible(t *testing.T) {
	small := newFakePlayer(0, true)
	big := newFakePlayer(0, true)
	hiddenHuge := newFakePlayer(0, true)
	cands := []PlayerCandidate{
		{Player: small, Width: 320, Height: 180, Visible: true},
		{Player: big, Width: 1280, Height: 720, Visible: true},
		{Player: hiddenHuge, Width: 1920, Height: 1080, Visible: false},
	}
	p, ok := PickPlayer(cands, DefaultMinPlayerArea)
	if !ok || p != big {
		t.Fatalf("PickPlayer picked %v, want the largest visible candidate", p)
	}
}

func TestPickPlayerRejectsThumbnails(t *testing.T) {
	// Several candidates all below the minimum area: none qualifies.
	cands := []PlayerCandidate{
		{Player: newFakePlayer(0, true), Width: 120, Height: 68, Visible: true},
		{Player: newFakePlayer(0, true), Width: 100, Height: 56, Visible: true},
	}
	if p, ok := PickPlayer(cands, DefaultMinPlayerArea); ok || p != nil {
		t.Fatalf("PickPlayer = %v, %v; want nil, false for thumbnail-sized players", p, ok)
	}
}
