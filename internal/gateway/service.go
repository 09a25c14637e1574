package gateway

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/vidsync/vidsync/internal/rooms"
)

// Service bundles the gateway with its HTTP surface.
type Service struct {
	Gateway *Gateway
	bridge  *Bridge
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	// BridgeConfig is consulted only when EnableBridge is set.
	EnableBridge bool
	BridgeConfig BridgeConfig
}

// DefaultConfig returns the default service configuration with the bridge
// disabled.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		BridgeConfig:     DefaultBridgeConfig(),
	}
}

// NewService creates a gateway service over a fresh in-memory registry.
func NewService(config Config) (*Service, error) {
	gw := New(rooms.NewRegistry(rooms.NewMemStore()), config.ConnectionConfig)
	svc := &Service{Gateway: gw}

	if config.EnableBridge {
		bridge, err := NewBridge(gw, config.BridgeConfig)
		if err != nil {
			return nil, err
		}
		if err := bridge.Start(); err != nil {
			bridge.Stop()
			return nil, err
		}
		gw.SetBridge(bridge)
		svc.bridge = bridge
	}
	return svc, nil
}

// Handler returns the service's HTTP handler with CORS applied.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// RegisterRoutes registers the WebSocket and status routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.Gateway.HandleWS)
	mux.HandleFunc("/stats", s.Gateway.HandleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Stop releases the bridge, if any.
func (s *Service) Stop() {
	if s.bridge != nil {
		s.bridge.Stop()
	}
}
