package translator

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"
)

const ethernetHeaderLen = 14

var broadcastMAC = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ipToEthernet prepends a 14-octet Ethernet header to ipPacket,
// selecting the destination MAC from the currently learned gateway
// MAC (IPv4 only) or broadcast otherwise. It never mutates or
// recomputes anything inside ipPacket: the translator is not an IP
// router.
func (t *Translator) ipToEthernet(ipPacket []byte) ([]byte, error) {
	if len(ipPacket) < 1 {
		return nil, fmt.Errorf("ip_to_ethernet: %w: empty packet", ErrInvalidPacket)
	}

	version := ipPacket[0] >> 4

	var etherType layers.EthernetType
	var dst []byte

	switch version {
	case 4:
		etherType = layers.EthernetTypeIPv4

		if t.gatewayMAC != nil {
			dst = t.gatewayMAC
		} else {
			dst = broadcastMAC
		}
	case 6:
		etherType = layers.EthernetTypeIPv6
		// No IPv6 neighbor discovery in scope: always broadcast.
		dst = broadcastMAC
	default:
		return nil, fmt.Errorf("ip_to_ethernet: %w: unrecognized IP version nibble 0x%x", ErrInvalidPacket, version)
	}

	t.learnOurIPFromEgress(ipPacket)

	frame := make([]byte, ethernetHeaderLen+len(ipPacket))
	copy(frame[0:6], dst)
	copy(frame[6:12], t.config.OurMAC)
	binary.BigEndian.PutUint16(frame[12:14], uint16(etherType))
	copy(frame[14:], ipPacket)

	saturatingAdd(&t.stats.L3ToL2, 1)

	return frame, nil
}

// ethernetToIP strips the Ethernet header from frame and returns the
// IP payload, or nil if the frame was fully handled internally (ARP,
// or an IPv4/UDP datagram addressed to the DHCP client port) or
// carries an EtherType the translator doesn't forward. The DHCP case
// is a deliberate departure from a literal strip-and-return contract:
// a reply addressed to our own DHCP client is the initiator's own
// protocol traffic, not payload for the caller.
func (t *Translator) ethernetToIP(frame []byte) ([]byte, error) {
	if len(frame) < ethernetHeaderLen {
		return nil, fmt.Errorf("ethernet_to_ip: %w: frame too short (%d bytes)", ErrInvalidPacket, len(frame))
	}

	etherType := layers.EthernetType(binary.BigEndian.Uint16(frame[12:14]))

	switch etherType {
	case layers.EthernetTypeARP:
		if t.config.HandleARP {
			t.handleIngressARP(frame)
		}

		return nil, nil
	case layers.EthernetTypeIPv4, layers.EthernetTypeIPv6:
		payload := make([]byte, len(frame)-ethernetHeaderLen)
		copy(payload, frame[ethernetHeaderLen:])

		if etherType == layers.EthernetTypeIPv4 {
			t.learnGatewayMACFromIngress(frame, payload)

			if dhcp, ok := decodeDHCPReply(payload); ok {
				t.handleIngressDHCP(dhcp)
				return nil, nil
			}
		}

		saturatingAdd(&t.stats.L2ToL3, 1)

		return payload, nil
	default:
		return nil, nil
	}
}
