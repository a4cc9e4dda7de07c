package translator

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/looplab/fsm"
)

// DHCP client/server UDP ports, per RFC 2131.
const (
	dhcpClientPort = 68
	dhcpServerPort = 67
)

const (
	dhcpStateIdle       = "idle"
	dhcpStateSelecting  = "selecting"
	dhcpStateRequesting = "requesting"
	dhcpStateBound      = "bound"

	dhcpEventStart   = "start"
	dhcpEventOffer   = "offer"
	dhcpEventAck     = "ack"
	dhcpEventNak     = "nak"
	dhcpEventRelease = "release"
)

// defaultLeaseSeconds and the T1/T2 percentages used when a server
// omits option 51/58/59
const (
	defaultLeaseSeconds = 86400
	defaultT1Fraction   = 0.5
	defaultT2Fraction   = 0.875
)

// Lease records everything a DHCP ACK handed back, plus the moment it
// was captured, so callers can schedule renewal/rebinding/expiry
// themselves -- the core translator owns no timers.
type Lease struct {
	ObtainedAt       time.Time
	AssignedIP       net.IP
	SubnetMask       net.IP
	Router           net.IP
	DNSServers       []net.IP
	ServerID         net.IP
	LeaseSeconds     uint32
	RenewalSeconds   uint32
	RebindingSeconds uint32
}

// IsExpired reports whether the lease has run past its full lease
// time as of now.
func (l Lease) IsExpired(now time.Time) bool {
	return now.Sub(l.ObtainedAt) >= time.Duration(l.LeaseSeconds)*time.Second
}

// NeedsRenewal reports whether now has reached T1, the renewal timer.
func (l Lease) NeedsRenewal(now time.Time) bool {
	return now.Sub(l.ObtainedAt) >= time.Duration(l.RenewalSeconds)*time.Second
}

// NeedsRebinding reports whether now has reached T2, the rebinding
// timer.
func (l Lease) NeedsRebinding(now time.Time) bool {
	return now.Sub(l.ObtainedAt) >= time.Duration(l.RebindingSeconds)*time.Second
}

// dhcpClient drives the DHCP initiator state machine: Idle ->
// Selecting -> Requesting -> Bound, with NAK returning to Idle from
// any state. Transitions are modeled with looplab/fsm.
type dhcpClient struct {
	fsm             *fsm.FSM
	xid             uint32
	offeredIP       net.IP
	offeredServerID net.IP
	lease           *Lease
	queue           [][]byte
	rng             *rand.Rand
}

func newDHCPClient(rng *rand.Rand) *dhcpClient {
	d := &dhcpClient{rng: rng}
	d.fsm = fsm.NewFSM(
		dhcpStateIdle,
		fsm.Events{
			{Name: dhcpEventStart, Src: []string{dhcpStateIdle}, Dst: dhcpStateSelecting},
			{Name: dhcpEventOffer, Src: []string{dhcpStateSelecting}, Dst: dhcpStateRequesting},
			{Name: dhcpEventAck, Src: []string{dhcpStateRequesting}, Dst: dhcpStateBound},
			{Name: dhcpEventNak, Src: []string{dhcpStateSelecting, dhcpStateRequesting, dhcpStateBound}, Dst: dhcpStateIdle},
			{Name: dhcpEventRelease, Src: []string{dhcpStateIdle, dhcpStateSelecting, dhcpStateRequesting, dhcpStateBound}, Dst: dhcpStateIdle},
		},
		fsm.Callbacks{},
	)

	return d
}

func (d *dhcpClient) state() string {
	return d.fsm.Current()
}

// startDHCP moves Idle -> Selecting, assigns a fresh xid, and enqueues a
// DISCOVER frame.
func (t *Translator) startDHCP() error {
	if t.dhcp.state() != dhcpStateIdle {
		return fmt.Errorf("translator: DHCP already in progress (state %s)", t.dhcp.state())
	}

	if err := t.dhcp.fsm.Event(dhcpEventStart); err != nil {
		return fmt.Errorf("translator: starting DHCP: %w", err)
	}

	t.dhcp.xid = t.dhcp.rng.Uint32()
	t.dhcp.offeredIP = nil
	t.dhcp.offeredServerID = nil
	t.dhcp.lease = nil

	frame, err := t.buildDHCPFrame(layers.DHCPMsgTypeDiscover, nil, nil)

	if err != nil {
		return fmt.Errorf("translator: building DHCP DISCOVER: %w", err)
	}

	t.dhcp.queue = append(t.dhcp.queue, frame)
	t.config.logger()("translator: DHCP DISCOVER sent, xid=0x%08x", t.dhcp.xid)

	return nil
}

// releaseDHCP resets the state machine to Idle regardless of its
// current state.
func (t *Translator) releaseDHCP() {
	_ = t.dhcp.fsm.Event(dhcpEventRelease)
	t.dhcp.offeredIP = nil
	t.dhcp.offeredServerID = nil
}

// handleIngressDHCP dispatches a decoded DHCPv4 reply according to
// the current state. Mismatched xid, unrecognized message types, and
// malformed options are ignored without surfacing an error -- DHCP
// retransmission policy belongs to the caller.
func (t *Translator) handleIngressDHCP(dhcp *layers.DHCPv4) {
	if dhcp.Operation != layers.DHCPOpReply {
		return
	}

	if uint32(dhcp.Xid) != t.dhcp.xid {
		return
	}

	msgType := dhcpMessageType(dhcp.Options)

	if msgType == 0 {
		return
	}

	switch msgType {
	case layers.DHCPMsgTypeOffer:
		t.handleDHCPOffer(dhcp)
	case layers.DHCPMsgTypeAck:
		t.handleDHCPAck(dhcp)
	case layers.DHCPMsgTypeNak:
		_ = t.dhcp.fsm.Event(dhcpEventNak)
		t.config.logger()("translator: DHCP NAK received, xid=0x%08x", t.dhcp.xid)
	}
}

func (t *Translator) handleDHCPOffer(dhcp *layers.DHCPv4) {
	if t.dhcp.state() != dhcpStateSelecting {
		return
	}

	serverID := dhcpOptionIP(dhcp.Options, layers.DHCPOptServerID)

	if serverID == nil {
		return
	}

	t.dhcp.offeredIP = append(net.IP(nil), dhcp.YourClientIP...)
	t.dhcp.offeredServerID = serverID

	if err := t.dhcp.fsm.Event(dhcpEventOffer); err != nil {
		return
	}

	frame, err := t.buildDHCPFrame(layers.DHCPMsgTypeRequest, t.dhcp.offeredIP, t.dhcp.offeredServerID)

	if err != nil {
		t.config.logger()("translator: failed to build DHCP REQUEST: %s", err)
		return
	}

	t.dhcp.queue = append(t.dhcp.queue, frame)
	t.config.logger()("translator: DHCP REQUEST sent for %s", t.dhcp.offeredIP)
}

func (t *Translator) handleDHCPAck(dhcp *layers.DHCPv4) {
	if t.dhcp.state() != dhcpStateRequesting {
		return
	}

	if err := t.dhcp.fsm.Event(dhcpEventAck); err != nil {
		return
	}

	lease := &Lease{
		ObtainedAt:       t.clockSource.now(),
		AssignedIP:       append(net.IP(nil), dhcp.YourClientIP...),
		SubnetMask:       dhcpOptionIP(dhcp.Options, layers.DHCPOptSubnetMask),
		Router:           dhcpOptionIP(dhcp.Options, layers.DHCPOptRouter),
		DNSServers:       dhcpOptionIPs(dhcp.Options, layers.DHCPOptDNS),
		ServerID:         dhcpOptionIP(dhcp.Options, layers.DHCPOptServerID),
		LeaseSeconds:     dhcpOptionUint32(dhcp.Options, layers.DHCPOptLeaseTime, defaultLeaseSeconds),
	}
	lease.RenewalSeconds = dhcpOptionUint32(dhcp.Options, layers.DHCPOptT1, uint32(float64(lease.LeaseSeconds)*defaultT1Fraction))
	lease.RebindingSeconds = dhcpOptionUint32(dhcp.Options, layers.DHCPOptT2, uint32(float64(lease.LeaseSeconds)*defaultT2Fraction))

	t.dhcp.lease = lease
	t.ourIP = lease.AssignedIP
	t.config.logger()("translator: DHCP bound, our IP is now %s (lease %ds)", t.ourIP, lease.LeaseSeconds)
}

// buildDHCPFrame wraps a BOOTP/DHCP message for msgType in
// UDP/IPv4/Ethernet framing, broadcast to the segment since the
// initiator has no server address yet.
func (t *Translator) buildDHCPFrame(msgType layers.DHCPMsgType, requestIP, serverID net.IP) ([]byte, error) {
	chaddr := append(net.HardwareAddr(nil), t.config.OurMAC...)

	options := layers.DHCPOptions{
		layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(msgType)}),
	}

	if msgType == layers.DHCPMsgTypeRequest {
		options = append(options,
			layers.NewDHCPOption(layers.DHCPOptRequestIP, requestIP.To4()),
			layers.NewDHCPOption(layers.DHCPOptServerID, serverID.To4()),
		)
	}

	options = append(options,
		layers.NewDHCPOption(layers.DHCPOptParamsRequest, []byte{
			byte(layers.DHCPOptSubnetMask),
			byte(layers.DHCPOptRouter),
			byte(layers.DHCPOptDNS),
			byte(layers.DHCPOptLeaseTime),
		}),
		layers.NewDHCPOption(layers.DHCPOptEnd, nil),
	)

	dhcp := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  6,
		Xid:          t.dhcp.xid,
		ClientIP:     net.IPv4zero,
		YourClientIP: net.IPv4zero,
		NextServerIP: net.IPv4zero,
		RelayAgentIP: net.IPv4zero,
		ClientHWAddr: chaddr,
		Options:      options,
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4zero,
		DstIP:    net.IPv4bcast,
	}

	udp := &layers.UDP{
		SrcPort: dhcpClientPort,
		DstPort: dhcpServerPort,
	}
	udp.SetNetworkLayerForChecksum(ip)

	ethernet := &layers.Ethernet{
		SrcMAC:       t.config.OurMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if err := gopacket.SerializeLayers(sbuf, opts, ethernet, ip, udp, dhcp); err != nil {
		return nil, err
	}

	return sbuf.Bytes(), nil
}

func (t *Translator) popDHCPPacket() []byte {
	if len(t.dhcp.queue) == 0 {
		return nil
	}

	frame := t.dhcp.queue[0]
	t.dhcp.queue = t.dhcp.queue[1:]

	return frame
}

// decodeDHCPReply inspects an IPv4 payload already stripped of its
// Ethernet header and reports whether it is a UDP datagram addressed
// to the DHCP client port (68). Only such datagrams are candidates for
// the initiator's inbound half; everything else is ordinary traffic
// the Framer hands back to the caller untouched.
func decodeDHCPReply(ipPayload []byte) (*layers.DHCPv4, bool) {
	packet := gopacket.NewPacket(ipPayload, layers.LayerTypeIPv4, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)

	if !ok || udp == nil || udp.DstPort != dhcpClientPort {
		return nil, false
	}

	dhcp, ok := packet.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)

	if !ok || dhcp == nil {
		return nil, false
	}

	return dhcp, true
}

func dhcpMessageType(options layers.DHCPOptions) layers.DHCPMsgType {
	for _, opt := range options {
		if opt.Type == layers.DHCPOptMessageType && opt.Length == 1 {
			return layers.DHCPMsgType(opt.Data[0])
		}
	}

	return 0
}

func dhcpOptionIP(options layers.DHCPOptions, t layers.DHCPOpt) net.IP {
	for _, opt := range options {
		if opt.Type == t && opt.Length == 4 {
			return net.IP(append([]byte(nil), opt.Data...))
		}
	}

	return nil
}

func dhcpOptionIPs(options layers.DHCPOptions, t layers.DHCPOpt) []net.IP {
	for _, opt := range options {
		if opt.Type == t && opt.Length >= 4 && opt.Length%4 == 0 {
			ips := make([]net.IP, 0, opt.Length/4)

			for i := 0; i < int(opt.Length); i += 4 {
				ips = append(ips, net.IP(append([]byte(nil), opt.Data[i:i+4]...)))
			}

			return ips
		}
	}

	return nil
}

func dhcpOptionUint32(options layers.DHCPOptions, t layers.DHCPOpt, def uint32) uint32 {
	for _, opt := range options {
		if opt.Type == t && opt.Length == 4 {
			return binary.BigEndian.Uint32(opt.Data)
		}
	}

	return def
}
