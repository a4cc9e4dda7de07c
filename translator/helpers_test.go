package translator

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// buildARPRequest constructs an Ethernet+ARP request frame asking "who
// has targetIP", sent from senderMAC. Ethernet serialization pads it
// to the 60-octet Ethernet minimum.
func buildARPRequest(t *testing.T, senderMAC net.HardwareAddr, senderIP, targetIP net.IP) []byte {
	t.Helper()

	ethernet := &layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    targetIP.To4(),
	}

	return serializeOrFail(t, ethernet, arp)
}

// buildARPReply constructs an Ethernet+ARP reply asserting that
// senderIP is at senderMAC, addressed to targetMAC/targetIP, padded to
// 60 octets like buildARPRequest.
func buildARPReply(t *testing.T, senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) []byte {
	t.Helper()

	ethernet := &layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       targetMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      targetMAC,
		DstProtAddress:    targetIP.To4(),
	}

	return serializeOrFail(t, ethernet, arp)
}

func serializeOrFail(t *testing.T, layerList ...gopacket.SerializableLayer) []byte {
	t.Helper()

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if err := gopacket.SerializeLayers(sbuf, opts, layerList...); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	return sbuf.Bytes()
}

// buildMinimalIPv4 returns a 28-octet IPv4 packet from src to dst: a
// 20-octet header carrying an empty UDP datagram (port 12345 to 53),
// suitable for exercising the framer and learners.
func buildMinimalIPv4(t *testing.T, src, dst net.IP) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.To4(),
		DstIP:    dst.To4(),
	}

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	udp := &layers.UDP{SrcPort: 12345, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)

	if err := gopacket.SerializeLayers(sbuf, opts, ip, udp); err != nil {
		t.Fatalf("expected no error but got: %s", err)
	}

	return sbuf.Bytes()
}
