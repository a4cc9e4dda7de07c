package translator

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"net"
)

// Translator is a single-threaded L2<->L3 protocol translator. It
// holds no goroutines, performs no I/O, and is not internally
// synchronized: a caller sharing one Translator across goroutines must
// serialize access externally. The intended pattern is
// one Translator per connection/direction.
type Translator struct {
	config *Config

	ourIP      net.IP
	gatewayIP  net.IP
	gatewayMAC net.HardwareAddr

	lastGatewayLearn int64

	arpReplyQueue [][]byte
	pendingARPIPs map[uint32]struct{}

	dhcp *dhcpClient

	stats Stats

	clockSource clock
}

// New constructs a Translator from config. config is copied; later
// mutation of the passed-in value does not affect the Translator.
func New(config *Config) (*Translator, error) {
	if config == nil {
		return nil, fmt.Errorf("translator: config must not be nil")
	}

	cfg := *config

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	seed, err := randomSeed()

	if err != nil {
		return nil, fmt.Errorf("translator: seeding random source: %w", err)
	}

	t := &Translator{
		config:        &cfg,
		pendingARPIPs: make(map[uint32]struct{}),
		clockSource:   realClock{},
	}
	t.dhcp = newDHCPClient(mathrand.New(mathrand.NewSource(seed)))

	return t, nil
}

// randomSeed draws a 64-bit seed from crypto/rand once at
// construction time, so each Translator's xid sequence is
// unpredictable without keeping a shared, process-wide math/rand
// source.
func randomSeed() (int64, error) {
	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// Close frees every queue and internal allocation owned by the
// Translator. It performs no I/O: platform resources belong to the
// caller's collaborators.
func (t *Translator) Close() error {
	t.arpReplyQueue = nil
	t.pendingARPIPs = nil
	t.dhcp = nil

	return nil
}

// IPToEthernet is the egress operation: it prepends Ethernet framing
// to an IP packet read from the host side, updating the host-IP
// learner as a side effect when enabled.
func (t *Translator) IPToEthernet(ipPacket []byte) ([]byte, error) {
	return t.ipToEthernet(ipPacket)
}

// EthernetToIP is the ingress operation: it strips Ethernet framing,
// routing ARP to the internal engine, IPv4/UDP datagrams addressed to
// the DHCP client port to the DHCP initiator, and all other IPv4/IPv6
// payloads back to the caller. A nil, nil result means the frame was
// fully consumed internally (ARP or a DHCP reply) or carries an
// EtherType the translator doesn't forward.
func (t *Translator) EthernetToIP(frame []byte) ([]byte, error) {
	return t.ethernetToIP(frame)
}

// SetOurIP manually assigns the translator's host IP, e.g. from
// out-of-band configuration. It overrides whatever learning would
// otherwise produce.
func (t *Translator) SetOurIP(ip net.IP) {
	t.ourIP = append(net.IP(nil), ip.To4()...)
}

// SetGatewayIP records the IPv4 address of the peer gateway, enabling
// both the ARP-reply learning path and the ingress IP-source learning
// path to recognize it.
func (t *Translator) SetGatewayIP(ip net.IP) {
	t.gatewayIP = append(net.IP(nil), ip.To4()...)
}

// StartDHCP begins a DHCP conversation: Idle -> Selecting, and
// enqueues a DISCOVER frame for PopDHCPPacket. It fails if a
// conversation is already in progress.
func (t *Translator) StartDHCP() error {
	return t.startDHCP()
}

// ReleaseDHCP resets the DHCP state machine to Idle from any state.
func (t *Translator) ReleaseDHCP() {
	t.releaseDHCP()
}

// DHCPState reports the current DHCP state: "idle", "selecting",
// "requesting", or "bound".
func (t *Translator) DHCPState() string {
	return t.dhcp.state()
}

// Lease returns the most recently obtained DHCP lease, if any.
func (t *Translator) Lease() (Lease, bool) {
	if t.dhcp.lease == nil {
		return Lease{}, false
	}

	return *t.dhcp.lease, true
}

// LearnedIP returns the translator's current host IP, whether it came
// from learning, SetOurIP, or a DHCP ACK.
func (t *Translator) LearnedIP() net.IP {
	return t.ourIP
}

// GatewayMAC returns the currently learned gateway Ethernet address,
// or nil if none has been learned yet.
func (t *Translator) GatewayMAC() net.HardwareAddr {
	return t.gatewayMAC
}

// LastGatewayLearn returns the monotonic millisecond timestamp of the
// most recent gateway MAC update, or 0 if none has occurred.
func (t *Translator) LastGatewayLearn() int64 {
	return t.lastGatewayLearn
}

// HasPendingARPReply reports whether PopARPReply would return a
// frame.
func (t *Translator) HasPendingARPReply() bool {
	return len(t.arpReplyQueue) > 0
}

// HasPendingDHCP reports whether PopDHCPPacket would return a frame.
func (t *Translator) HasPendingDHCP() bool {
	return len(t.dhcp.queue) > 0
}

// PopARPReply removes and returns the oldest queued ARP reply frame,
// transferring ownership to the caller. Returns nil if the queue is
// empty.
func (t *Translator) PopARPReply() []byte {
	return t.popARPReply()
}

// PopDHCPPacket removes and returns the oldest queued DHCP frame,
// transferring ownership to the caller. Returns nil if the queue is
// empty.
func (t *Translator) PopDHCPPacket() []byte {
	return t.popDHCPPacket()
}

// Stats returns a snapshot of the translator's counters.
func (t *Translator) Stats() Stats {
	return t.stats
}
