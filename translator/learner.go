package translator

import (
	"bytes"
	"net"
)

var linkLocalNet = &net.IPNet{
	IP:   net.IPv4(169, 254, 0, 0).To4(),
	Mask: net.CIDRMask(16, 32),
}

// learnOurIPFromEgress implements the egress learning hook: once
// LearnIP is enabled and our IP is not yet known, the source address
// of the first IPv4 packet long enough to carry one is adopted as our
// IP. Link-local addresses are rejected since they indicate the host
// hasn't configured a real address yet. Once set, this path never
// overwrites it; only an explicit SetOurIP or a DHCP ACK can.
func (t *Translator) learnOurIPFromEgress(ipPacket []byte) {
	if !t.config.LearnIP || t.ourIP != nil {
		return
	}

	if ipPacket[0]>>4 != 4 || len(ipPacket) < 20 {
		return
	}

	src := net.IP(append([]byte(nil), ipPacket[12:16]...))

	if linkLocalNet.Contains(src) {
		return
	}

	t.config.logger()("translator: learned our IP %s from egress traffic", src)
	t.ourIP = src
}

// learnGatewayMACFromIngress implements the ingress learning hook:
// when LearnGatewayMAC is enabled and the gateway's IP is known, any
// unicast IPv4 packet sourced by that gateway reveals its Ethernet
// address, even if the gateway never answers ARP. This is a separate,
// redundant channel from the ARP engine's reply-driven learning (see
// arp.go); it does not increment ARPRepliesLearned.
func (t *Translator) learnGatewayMACFromIngress(frame, ipPayload []byte) {
	if !t.config.LearnGatewayMAC || t.gatewayIP == nil {
		return
	}

	if len(ipPayload) < 20 || ipPayload[0]>>4 != 4 {
		return
	}

	src := net.IP(ipPayload[12:16])

	if !src.Equal(t.gatewayIP) {
		return
	}

	srcMAC := net.HardwareAddr(append([]byte(nil), frame[6:12]...))

	if t.gatewayMAC != nil && bytes.Equal(t.gatewayMAC, srcMAC) {
		return
	}

	t.config.logger()("translator: learned gateway MAC %s from ingress IP traffic", srcMAC)
	t.gatewayMAC = srcMAC
	t.lastGatewayLearn = t.clockSource.nowMs()
}
