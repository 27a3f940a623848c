// Package discovery implements the LAN peer-announce supplement
// (SPEC_FULL.md §6): an mDNS broadcast of the local peer's nickname and
// ports under "_videocall._tcp", purely additive — the directory client
// remains the primary resolution path and nothing here changes its wire
// protocol.
package discovery

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/brutella/dnssd"
	"github.com/patrickmn/go-cache"

	"videocall/internal/peer"
)

const serviceType = "_videocall._tcp"

// entryTTL bounds how long a browsed peer is remembered after its last
// sighting, mirroring directory.Client's query cache.
const entryTTL = 2 * time.Minute

// Logger is the minimal structured-logging contract this package needs.
type Logger interface {
	Warn(msg string, kv ...any)
	Debug(msg string, kv ...any)
}

// Announce advertises local on the LAN via mDNS until ctx is done. Errors
// starting the responder are returned; once running, failures are logged
// and swallowed since discovery is a best-effort supplement (spec
// Non-goals: no NAT traversal, no conferencing — discovery never blocks a
// call that can still be placed via the directory).
func Announce(ctx context.Context, local peer.Identity, log Logger) error {
	cfg := dnssd.Config{
		Name: local.Nickname,
		Type: serviceType,
		Port: local.ReliablePort,
		Text: map[string]string{
			"udp_port":  strconv.Itoa(local.DatagramPort),
			"protocols": joinProtocols(local.Protocols),
		},
	}
	service, err := dnssd.NewService(cfg)
	if err != nil {
		return err
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return err
	}
	if _, err := responder.Add(service); err != nil {
		return err
	}

	go func() {
		if err := responder.Respond(ctx); err != nil && log != nil {
			log.Warn("mdns responder stopped", "err", err)
		}
	}()
	return nil
}

// Browse watches the LAN for other videocall peers until ctx is done,
// invoking found each time one is seen (including re-announcements) and lost
// when dnssd reports it has left the LAN.
func Browse(ctx context.Context, found func(peer.Identity), lost func(nick string), log Logger) error {
	return dnssd.LookupType(ctx, serviceType,
		func(e dnssd.BrowseEntry) {
			id := peer.Identity{Nickname: e.Name, Protocols: splitProtocols(e.Text["protocols"])}
			if len(e.IPs) > 0 {
				id.Addr = e.IPs[0].String()
			}
			id.ReliablePort = e.Port
			if p, err := strconv.Atoi(e.Text["udp_port"]); err == nil {
				id.DatagramPort = p
			}
			if log != nil {
				log.Debug("mdns peer seen", "nick", id.Nickname, "addr", id.Addr)
			}
			found(id)
		},
		func(e dnssd.BrowseEntry) {
			if log != nil {
				log.Debug("mdns peer gone", "nick", e.Name)
			}
			if lost != nil {
				lost(e.Name)
			}
		},
	)
}

// Cache remembers peers seen via Browse so a dialer can resolve a nickname
// without a running directory (spec §6). Entries expire entryTTL after their
// last sighting and are dropped immediately on a "gone" notification.
type Cache struct {
	seen *cache.Cache
}

// NewCache builds an empty LAN peer cache.
func NewCache() *Cache {
	return &Cache{seen: cache.New(entryTTL, entryTTL)}
}

// Observe runs as Browse's found callback: each sighting stores (or
// refreshes) the peer's identity. Removal is handled by Forget.
func (c *Cache) Observe(id peer.Identity) {
	c.seen.SetDefault(id.Nickname, id)
}

// Forget evicts nick, used when Browse reports a peer has left the LAN.
func (c *Cache) Forget(nick string) {
	c.seen.Delete(nick)
}

// Resolve looks up nick among recently-browsed peers.
func (c *Cache) Resolve(nick string) (peer.Identity, bool) {
	v, ok := c.seen.Get(nick)
	if !ok {
		return peer.Identity{}, false
	}
	return v.(peer.Identity), true
}

func joinProtocols(p []string) string { return strings.Join(p, ",") }

func splitProtocols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
