package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vidsync/vidsync/internal/client"
)

// The agent joins a room with a simulated player so a gateway can be
// exercised end to end without a browser.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	serverURL := getEnv("VIDSYNC_URL", "ws://localhost:8080/ws")
	roomID := getEnv("VIDSYNC_ROOM", "DEMO")
	name := getEnv("VIDSYNC_NAME", "agent")

	cfg := client.SessionConfig{
		Conn:        client.DefaultConnConfig(serverURL),
		Reconciler:  client.DefaultReconcilerConfig(),
		AdGate:      client.DefaultAdGateConfig(),
		RoomID:      roomID,
		DisplayName: name,
	}

	store := client.NewIdentityStore(getEnv("VIDSYNC_IDENTITY", ".vidsync/identity.json"))

	sess, err := client.NewSession(cfg, store, noAds{}, logOverlay{}, logNavigator{}, clockwork.NewRealClock(), client.SessionCallbacks{
		OnRoom: func(info client.RoomInfo) {
			log.Info().
				Str("room_id", info.RoomID).
				Bool("is_host", info.IsHost).
				Int("peers", len(info.Users)).
				Msg("room update")
		},
		OnStatus: func(st client.Status) {
			log.Info().Int("status", int(st)).Msg("connection status")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	sess.AttachPlayer(newSimPlayer())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("server", serverURL).Str("room", roomID).Msg("sync agent starting")
	sess.Run(ctx)
	log.Info().Msg("sync agent stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type noAds struct{}

func (noAds) IsAdPlaying() bool { return false }

type logOverlay struct{}

func (logOverlay) Show() { log.Info().Msg("peer is watching an ad, playback held") }
func (logOverlay) Hide() { log.Info().Msg("ad hold released") }

type logNavigator struct{}

func (logNavigator) Navigate(url string) error {
	log.Info().Str("url", url).Msg("host navigated")
	return nil
}

// simPlayer is a wall-clock driven stand-in for a real video element.
type simPlayer struct {
	mu     sync.Mutex
	base   float64
	baseAt time.Time
	paused bool
	rate   float64
}

func newSimPlayer() *simPlayer {
	return &simPlayer{baseAt: time.Now(), paused: true, rate: 1.0}
}

func (p *simPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *simPlayer) positionLocked() float64 {
	if p.paused {
		return p.base
	}
	return p.base + time.Since(p.baseAt).Seconds()*p.rate
}

func (p *simPlayer) SetPosition(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = seconds
	p.baseAt = time.Now()
}

func (p *simPlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *simPlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.positionLocked()
	p.baseAt = time.Now()
	p.rate = rate
}

func (p *simPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *simPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.baseAt = time.Now()
		p.paused = false
	}
	return nil
}

func (p *simPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.base = p.positionLocked()
		p.paused = true
	}
}
