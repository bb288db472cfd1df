// Package dispatch sends replayed payloads over UDP.
//
// A Dispatcher is bound to one destination and one mode for its lifetime.
// Sends are fire-and-forget: a failed send is reported to the caller and
// leaves the dispatcher usable.
package dispatch

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"golang.org/x/net/ipv4"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
)

// Mode selects how datagrams are addressed.
type Mode int

const (
	Unicast Mode = iota
	Multicast
	Broadcast
)

func (m Mode) String() string {
	switch m {
	case Unicast:
		return "unicast"
	case Multicast:
		return "multicast"
	case Broadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "unicast", "multicast" or "broadcast".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unicast", "":
		return Unicast, nil
	case "multicast":
		return Multicast, nil
	case "broadcast":
		return Broadcast, nil
	default:
		return 0, errs.Ef(errs.InvalidArgument, "dispatch.mode", "unknown mode %q", s)
	}
}

// Config describes the destination.
type Config struct {
	Mode Mode `toml:"mode"`

	// Address is host:port. For Multicast the host is the group address.
	// For Broadcast an empty host means 255.255.255.255.
	Address string `toml:"address"`

	// Interface names the outgoing interface for multicast. Empty selects
	// the system default.
	Interface string `toml:"interface"`

	// TTL sets the IP time-to-live (multicast hop limit for Multicast).
	// Zero keeps the system default.
	TTL int `toml:"ttl"`

	// Loopback delivers multicast datagrams to listeners on this host.
	Loopback bool `toml:"loopback"`
}

// Stats counts dispatcher activity.
type Stats struct {
	Sent   uint64
	Bytes  uint64
	Errors uint64
}

// Sender is what the playback engine needs from a dispatcher.
type Sender interface {
	Send(payload []byte) error
	Close() error
}

// Dispatcher is a UDP Sender. It is safe for concurrent use.
type Dispatcher struct {
	cfg    Config
	conn   *net.UDPConn
	dst    *net.UDPAddr
	logger log.Logger

	closed atomic.Bool
	sent   atomic.Uint64
	bytes  atomic.Uint64
	errors atomic.Uint64
}

// New opens a socket for cfg.
func New(cfg Config, logger log.Logger) (*Dispatcher, error) {
	dst, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errs.FromNet("dispatch.open", cfg.Address, err)
	}
	if err := configure(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	logger = log.OrNoop(logger)
	logger.Info("dispatcher ready",
		log.String("mode", cfg.Mode.String()),
		log.String("destination", dst.String()),
	)
	return &Dispatcher{cfg: cfg, conn: conn, dst: dst, logger: logger}, nil
}

func resolve(cfg Config) (*net.UDPAddr, error) {
	addr := cfg.Address
	if cfg.Mode == Broadcast && strings.HasPrefix(addr, ":") {
		addr = net.IPv4bcast.String() + addr
	}
	dst, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "%s: %v", cfg.Address, err)
	}
	if dst.Port == 0 {
		return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "%s: missing port", cfg.Address)
	}
	switch cfg.Mode {
	case Unicast:
		if dst.IP == nil || dst.IP.IsUnspecified() {
			return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "%s: missing host", cfg.Address)
		}
	case Multicast:
		if !dst.IP.IsMulticast() {
			return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "%s is not a multicast group", dst.IP)
		}
	case Broadcast:
		if dst.IP == nil || dst.IP.IsMulticast() {
			return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "%s is not a broadcast address", cfg.Address)
		}
	default:
		return nil, errs.Ef(errs.InvalidArgument, "dispatch.resolve", "unknown mode %d", int(cfg.Mode))
	}
	return dst, nil
}

// configure applies socket options. UDP sockets opened by the net package
// already permit broadcast.
func configure(conn *net.UDPConn, cfg Config) error {
	if cfg.Mode == Multicast {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
			return errs.FromNet("dispatch.loopback", cfg.Address, err)
		}
		if cfg.TTL > 0 {
			if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
				return errs.FromNet("dispatch.ttl", cfg.Address, err)
			}
		}
		if cfg.Interface != "" {
			ifi, err := net.InterfaceByName(cfg.Interface)
			if err != nil {
				return errs.Ef(errs.InvalidArgument, "dispatch.interface", "%s: %v", cfg.Interface, err)
			}
			if err := pc.SetMulticastInterface(ifi); err != nil {
				return errs.FromNet("dispatch.interface", cfg.Address, err)
			}
		}
		return nil
	}
	if cfg.TTL > 0 {
		if err := ipv4.NewConn(conn).SetTTL(cfg.TTL); err != nil {
			return errs.FromNet("dispatch.ttl", cfg.Address, err)
		}
	}
	return nil
}

// Send writes payload as one datagram.
func (d *Dispatcher) Send(payload []byte) error {
	if d.closed.Load() {
		return errs.Ef(errs.InvalidState, "dispatch.send", "dispatcher closed")
	}
	n, err := d.conn.WriteToUDP(payload, d.dst)
	if err != nil {
		d.errors.Add(1)
		return errs.FromNet("dispatch.send", d.dst.String(), err)
	}
	d.sent.Add(1)
	d.bytes.Add(uint64(n))
	return nil
}

// Destination returns the resolved destination address.
func (d *Dispatcher) Destination() *net.UDPAddr { return d.dst }

// Mode returns the dispatch mode.
func (d *Dispatcher) Mode() Mode { return d.cfg.Mode }

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Bytes: d.bytes.Load(), Errors: d.errors.Load()}
}

// Close releases the socket. Further sends fail with InvalidState.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.conn.Close()
}
