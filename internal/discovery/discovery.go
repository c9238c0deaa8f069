// Package discovery announces the box on the local network so that a
// monitoring host can find it without configuration.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Message identifies discovery datagrams.
const Message = "OPERANT_DEVICE_DISCOVERY"

// Defaults.
const (
	DefaultPort     = 7899
	DefaultInterval = 5 * time.Second
	DefaultTarget   = "255.255.255.255"
)

// Config configures the announcer.
type Config struct {
	// Port is the UDP destination port.
	Port     int
	Interval time.Duration
	// Target is the destination address; the limited broadcast address by
	// default.
	Target string
	// Name, Address and HTTPPort are advertised to the host.
	Name     string
	Address  string
	HTTPPort int
}

// Announcement is the JSON body of a discovery datagram.
type Announcement struct {
	Message string `json:"message"`
	Key     string `json:"key"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Announcer periodically broadcasts an Announcement.
type Announcer struct {
	cfg Config
	key string
}

// New creates an announcer with a fresh per-process key.
func New(cfg Config) *Announcer {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.Address == "" {
		cfg.Address = LocalAddress()
	}
	return &Announcer{cfg: cfg, key: uuid.NewString()}
}

// Key returns the per-process discovery key.
func (a *Announcer) Key() string {
	return a.key
}

// Payload returns the encoded announcement.
func (a *Announcer) Payload() ([]byte, error) {
	return json.Marshal(Announcement{
		Message: Message,
		Key:     a.key,
		Name:    a.cfg.Name,
		Address: a.cfg.Address,
		Port:    a.cfg.HTTPPort,
	})
}

// Run broadcasts immediately and then every Interval until ctx is done.
// Send errors are logged and retried on the next interval.
func (a *Announcer) Run(ctx context.Context) error {
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(a.cfg.Target, strconv.Itoa(a.cfg.Port)))
	if err != nil {
		return fmt.Errorf("discovery: resolve target: %w", err)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("discovery: open socket: %w", err)
	}
	defer conn.Close()

	payload, err := a.Payload()
	if err != nil {
		return fmt.Errorf("discovery: encode: %w", err)
	}

	log.Info().Str("key", a.key).Str("target", dst.String()).Dur("interval", a.cfg.Interval).Msg("discovery: announcing")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	failing := false
	for {
		if _, err := conn.WriteToUDP(payload, dst); err != nil {
			if !failing {
				log.Warn().Err(err).Msg("discovery: broadcast failed")
				failing = true
			}
		} else if failing {
			log.Info().Msg("discovery: broadcast recovered")
			failing = false
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("discovery: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// LocalAddress returns the first non-loopback IPv4 address, or "" if there
// is none.
func LocalAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
