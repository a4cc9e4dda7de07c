package translator

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// buildDHCPReply wraps a server-side DHCP message (OFFER/ACK/NAK)
// addressed to the translator under test, mirroring what the real
// wire format carries in from the network.
func buildDHCPReply(t *testing.T, msgType layers.DHCPMsgType, xid uint32, yourIP net.IP, extra ...layers.DHCPOption) []byte {
	t.Helper()

	options := layers.DHCPOptions{
		layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(msgType)}),
		layers.NewDHCPOption(layers.DHCPOptServerID, net.ParseIP("192.168.1.1").To4()),
	}
	options = append(options, extra...)
	options = append(options, layers.NewDHCPOption(layers.DHCPOptEnd, nil))

	dhcp := &layers.DHCPv4{
		Operation:    layers.DHCPOpReply,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  6,
		Xid:          xid,
		YourClientIP: yourIP.To4(),
		ClientIP:     net.IPv4zero,
		NextServerIP: net.IPv4zero,
		RelayAgentIP: net.IPv4zero,
		ClientHWAddr: testMAC(0x01),
		Options:      options,
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP("192.168.1.1").To4(),
		DstIP:    net.IPv4bcast,
	}
	udp := &layers.UDP{SrcPort: dhcpServerPort, DstPort: dhcpClientPort}
	udp.SetNetworkLayerForChecksum(ip)

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if err := gopacket.SerializeLayers(sbuf, opts, ip, udp, dhcp); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	return sbuf.Bytes()
}

func TestStartDHCPEnqueuesDiscover(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	if tr.DHCPState() != dhcpStateSelecting {
		t.Fatalf("expected state %q, got %q", dhcpStateSelecting, tr.DHCPState())
	}

	if !tr.HasPendingDHCP() {
		t.Fatal("expected a queued DISCOVER frame")
	}

	frame := tr.PopDHCPPacket()
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	dhcp, ok := packet.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)

	if !ok || dhcp == nil {
		t.Fatal("expected a decodable DHCPv4 layer in the DISCOVER frame")
	}

	if dhcpMessageType(dhcp.Options) != layers.DHCPMsgTypeDiscover {
		t.Errorf("expected message type DISCOVER, got %v", dhcpMessageType(dhcp.Options))
	}
}

func TestStartDHCPRejectsWhenInProgress(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	if err := tr.StartDHCP(); err == nil {
		t.Fatal("expected an error starting DHCP while already in progress")
	}
}

func TestDHCPOfferThenAckBindsLease(t *testing.T) {
	tr := newTestTranslator(t, nil)
	fc := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr.clockSource = fc

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}
	tr.PopDHCPPacket()

	xid := tr.dhcp.xid
	offeredIP := net.ParseIP("192.168.1.50")

	offerPayload := buildDHCPReply(t, layers.DHCPMsgTypeOffer, xid, offeredIP)
	offerDHCP := decodeDHCPFromIPPayload(t, offerPayload)
	tr.handleIngressDHCP(offerDHCP)

	if tr.DHCPState() != dhcpStateRequesting {
		t.Fatalf("expected state %q after OFFER, got %q", dhcpStateRequesting, tr.DHCPState())
	}

	if !tr.HasPendingDHCP() {
		t.Fatal("expected a queued REQUEST frame after OFFER")
	}
	tr.PopDHCPPacket()

	ackPayload := buildDHCPReply(t, layers.DHCPMsgTypeAck, xid, offeredIP,
		layers.NewDHCPOption(layers.DHCPOptLeaseTime, []byte{0, 0, 0x0e, 0x10}),
	)
	ackDHCP := decodeDHCPFromIPPayload(t, ackPayload)
	tr.handleIngressDHCP(ackDHCP)

	if tr.DHCPState() != dhcpStateBound {
		t.Fatalf("expected state %q after ACK, got %q", dhcpStateBound, tr.DHCPState())
	}

	lease, ok := tr.Lease()
	if !ok {
		t.Fatal("expected a lease after ACK")
	}

	if !lease.AssignedIP.Equal(offeredIP) {
		t.Errorf("expected assigned IP %s, got %s", offeredIP, lease.AssignedIP)
	}

	if lease.LeaseSeconds != 0x0e10 {
		t.Errorf("expected lease seconds 0x0e10, got %d", lease.LeaseSeconds)
	}

	if !tr.LearnedIP().Equal(offeredIP) {
		t.Errorf("expected ACK to update the host IP, got %s", tr.LearnedIP())
	}

	if !lease.IsExpired(fc.t.Add(time.Duration(lease.LeaseSeconds+1) * time.Second)) {
		t.Error("expected the lease to report expired past its LeaseSeconds")
	}
}

func TestDHCPNakReturnsToIdle(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}
	tr.PopDHCPPacket()

	nakPayload := buildDHCPReply(t, layers.DHCPMsgTypeNak, tr.dhcp.xid, net.IPv4zero)
	tr.handleIngressDHCP(decodeDHCPFromIPPayload(t, nakPayload))

	if tr.DHCPState() != dhcpStateIdle {
		t.Fatalf("expected state %q after NAK, got %q", dhcpStateIdle, tr.DHCPState())
	}
}

func TestDHCPReplyWithMismatchedXidIsIgnored(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}
	tr.PopDHCPPacket()

	offerPayload := buildDHCPReply(t, layers.DHCPMsgTypeOffer, tr.dhcp.xid+1, net.ParseIP("192.168.1.50"))
	tr.handleIngressDHCP(decodeDHCPFromIPPayload(t, offerPayload))

	if tr.DHCPState() != dhcpStateSelecting {
		t.Fatalf("expected a mismatched xid to leave state at %q, got %q", dhcpStateSelecting, tr.DHCPState())
	}
}

func TestReleaseDHCPResetsFromAnyState(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	tr.ReleaseDHCP()

	if tr.DHCPState() != dhcpStateIdle {
		t.Fatalf("expected state %q after release, got %q", dhcpStateIdle, tr.DHCPState())
	}
}

func TestEthernetToIPRoutesDHCPReplyInternally(t *testing.T) {
	tr := newTestTranslator(t, nil)

	if err := tr.StartDHCP(); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}
	tr.PopDHCPPacket()

	offerIPPayload := buildDHCPReply(t, layers.DHCPMsgTypeOffer, tr.dhcp.xid, net.ParseIP("192.168.1.50"))
	frame := append(append(append([]byte{}, broadcastMAC...), testMAC(0x01)...), 0x08, 0x00)
	frame = append(frame, offerIPPayload...)

	payload, err := tr.EthernetToIP(frame)
	if err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	if payload != nil {
		t.Fatalf("expected a DHCP reply to be fully consumed internally, got %x", payload)
	}

	if tr.DHCPState() != dhcpStateRequesting {
		t.Fatalf("expected state %q, got %q", dhcpStateRequesting, tr.DHCPState())
	}

	if tr.Stats().L2ToL3 != 0 {
		t.Errorf("expected DHCP traffic not counted in L2ToL3, got %d", tr.Stats().L2ToL3)
	}
}

func decodeDHCPFromIPPayload(t *testing.T, ipPayload []byte) *layers.DHCPv4 {
	t.Helper()

	dhcp, ok := decodeDHCPReply(ipPayload)
	if !ok {
		t.Fatal("expected ipPayload to decode as a DHCP reply")
	}

	return dhcp
}
