package translator

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const arpFrameLen = 42

// ipv4Key turns a 4-octet IPv4 address into a comparable map key for
// the ARP dedup set.
func ipv4Key(ip net.IP) (uint32, bool) {
	ip4 := ip.To4()

	if ip4 == nil {
		return 0, false
	}

	return binary.BigEndian.Uint32(ip4), true
}

// handleIngressARP is the ARP engine's ingress half. Malformed frames
// (too short, unrecognized opcode) are
// silently dropped: no error is ever surfaced for ARP, matching
// hardware stack behavior and preventing a hostile peer from inducing
// unbounded error propagation.
func (t *Translator) handleIngressARP(frame []byte) {
	if len(frame) < arpFrameLen {
		return
	}

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	arp, ok := packet.Layer(layers.LayerTypeARP).(*layers.ARP)

	if !ok || arp == nil {
		return
	}

	switch arp.Operation {
	case layers.ARPReply:
		t.handleARPReply(arp)
	case layers.ARPRequest:
		t.handleARPRequest(arp)
	}
}

func (t *Translator) handleARPReply(arp *layers.ARP) {
	if t.gatewayIP == nil {
		return
	}

	senderIP := net.IP(arp.SourceProtAddress)

	if !senderIP.Equal(t.gatewayIP) {
		return
	}

	senderMAC := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))

	if t.gatewayMAC == nil || !bytes.Equal(t.gatewayMAC, senderMAC) {
		t.gatewayMAC = senderMAC
		t.lastGatewayLearn = t.clockSource.nowMs()
	}

	saturatingAdd(&t.stats.ARPRepliesLearned, 1)
	t.config.logger()("translator: learned gateway MAC %s from ARP reply", senderMAC)
}

func (t *Translator) handleARPRequest(arp *layers.ARP) {
	if t.ourIP == nil {
		return
	}

	targetIP := net.IP(arp.DstProtAddress)

	if !targetIP.Equal(t.ourIP) {
		return
	}

	saturatingAdd(&t.stats.ARPRequestsHandled, 1)

	reply := t.composeARPReply(arp)
	t.enqueueARPReply(reply, arp.SourceProtAddress)
}

// composeARPReply builds the 42-octet reply frame: Ethernet dest is
// the requester's hardware address,
// source is our_mac; the ARP sender fields assert (our_mac, our_ip),
// the target fields echo the requester's own address.
func (t *Translator) composeARPReply(req *layers.ARP) []byte {
	ethernetResp := &layers.Ethernet{
		SrcMAC:       t.config.OurMAC,
		DstMAC:       net.HardwareAddr(req.SourceHwAddress),
		EthernetType: layers.EthernetTypeARP,
	}
	arpResp := &layers.ARP{
		AddrType:          req.AddrType,
		Protocol:          req.Protocol,
		HwAddressSize:     req.HwAddressSize,
		ProtAddressSize:   req.ProtAddressSize,
		Operation:         layers.ARPReply,
		SourceHwAddress:   t.config.OurMAC,
		SourceProtAddress: t.ourIP.To4(),
		DstHwAddress:      req.SourceHwAddress,
		DstProtAddress:    req.SourceProtAddress,
	}

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	if err := gopacket.SerializeLayers(sbuf, opts, ethernetResp, arpResp); err != nil {
		// SerializeLayers only fails on programmer error (e.g.
		// malformed layer field lengths); since every field above
		// is either copied from a decoded request or our own
		// fixed-length config, this is unreachable in practice.
		panic(err)
	}

	// Ethernet.SerializeTo pads short frames to the 60-byte Ethernet
	// minimum; an ARP reply is always exactly 42 octets, so trim the
	// trailing padding back off.
	buf := sbuf.Bytes()
	if len(buf) > arpFrameLen {
		buf = buf[:arpFrameLen]
	}

	return buf
}

// enqueueARPReply applies the dedup and bound discipline: a duplicate
// target IP is discarded, a full queue discards the newest reply,
// otherwise the reply is appended and its target IP recorded as
// pending.
func (t *Translator) enqueueARPReply(reply []byte, targetIPBytes []byte) {
	key, ok := ipv4Key(net.IP(targetIPBytes))

	if !ok {
		return
	}

	if _, pending := t.pendingARPIPs[key]; pending {
		return
	}

	if len(t.arpReplyQueue) >= MaxARPQueue {
		return
	}

	t.arpReplyQueue = append(t.arpReplyQueue, reply)
	t.pendingARPIPs[key] = struct{}{}
}

// popARPReply removes and returns the oldest queued ARP reply,
// keeping pendingARPIPs consistent with the queue's contents.
func (t *Translator) popARPReply() []byte {
	if len(t.arpReplyQueue) == 0 {
		return nil
	}

	reply := t.arpReplyQueue[0]
	t.arpReplyQueue = t.arpReplyQueue[1:]

	targetIP := net.IP(reply[38:42])

	if key, ok := ipv4Key(targetIP); ok {
		delete(t.pendingARPIPs, key)
	}

	return reply
}
