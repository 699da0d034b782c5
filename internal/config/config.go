package config

import (
	"fmt"
	"os"
)

// Default configuration values (production)
const (
	DefaultDomain   = "rooms.voclara.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = ""
	DefaultTURNUser = ""
	DefaultTURNPass = ""
)

// Config holds client-side configuration.
type Config struct {
	// Domain is the signaling server domain (host or host:port).
	Domain string

	// Insecure switches ws/http instead of wss/https, for local servers.
	Insecure bool

	// WebSocketURL and APIBaseURL are constructed from Domain.
	WebSocketURL string
	APIBaseURL   string

	// ICE servers for the delegated peer connection.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carry CLI flag overrides into Load.
type Options struct {
	Domain     string
	Insecure   bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("ROOMKIT_DOMAIN"), DefaultDomain)
	stun := firstOf(opts.STUNServer, os.Getenv("ROOMKIT_STUN"), DefaultSTUN)
	turn := firstOf(opts.TURNServer, os.Getenv("ROOMKIT_TURN"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("ROOMKIT_TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstOf(opts.TURNPass, os.Getenv("ROOMKIT_TURN_PASSWORD"), DefaultTURNPass)

	insecure := opts.Insecure || os.Getenv("ROOMKIT_INSECURE") == "1"

	wsScheme, httpScheme := "wss", "https"
	if insecure {
		wsScheme, httpScheme = "ws", "http"
	}

	return &Config{
		Domain:       domain,
		Insecure:     insecure,
		WebSocketURL: fmt.Sprintf("%s://%s/ws", wsScheme, domain),
		APIBaseURL:   fmt.Sprintf("%s://%s", httpScheme, domain),
		STUNServer:   stun,
		TURNServer:   turn,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
	}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns the TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
