package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// BridgeConfig holds configuration for the cross-instance relay bridge.
type BridgeConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultBridgeConfig returns the default bridge configuration.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "vidsync.rooms",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// bridgeEnvelope wraps a relayed frame with its origin so instances never
// re-deliver their own traffic.
type bridgeEnvelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Data     json.RawMessage `json:"data"`
}

// Bridge mirrors room broadcasts across gateway instances over NATS. Core
// NATS pub/sub is used rather than JetStream: relay delivery is best-effort
// and fire-and-forget, so there is nothing to replay.
type Bridge struct {
	gw         *Gateway
	nc         *nats.Conn
	sub        *nats.Subscription
	config     BridgeConfig
	instanceID string
}

// NewBridge connects to NATS and returns a bridge for the given gateway.
func NewBridge(gw *Gateway, config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bridge{
		gw:         gw,
		nc:         nc,
		config:     config,
		instanceID: uuid.New().String()[:8],
	}, nil
}

// Start subscribes to the room subject space and begins mirroring remote
// broadcasts into the local gateway.
func (b *Bridge) Start() error {
	subject := b.config.SubjectPrefix + ".>"
	sub, err := b.nc.Subscribe(subject, b.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.sub = sub

	log.Info().
		Str("instance", b.instanceID).
		Str("subject", subject).
		Msg("relay bridge started")
	return nil
}

// Publish forwards a locally broadcast frame to the other instances.
func (b *Bridge) Publish(roomID string, data []byte) {
	env, err := json.Marshal(bridgeEnvelope{
		Instance: b.instanceID,
		Room:     roomID,
		Data:     data,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal bridge envelope")
		return
	}
	subject := b.config.SubjectPrefix + "." + roomID
	if err := b.nc.Publish(subject, env); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("bridge publish failed")
	}
}

func (b *Bridge) handle(msg *nats.Msg) {
	var env bridgeEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("bad bridge envelope")
		return
	}
	if env.Instance == b.instanceID {
		return
	}
	b.gw.broadcastRaw(env.Room, env.Data, "")
}

// Stop drains the subscription and closes the NATS connection.
func (b *Bridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
