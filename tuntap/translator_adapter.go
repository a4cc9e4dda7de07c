package tuntap

import (
	"fmt"

	"github.com/taptun-go/taptun/translator"
)

// TranslatorAdapter wraps a raw Ethernet-framed Adapter with a
// translator.Translator, presenting an IP-only io.ReadWriteCloser to
// callers that never want to see a frame header, an ARP packet, or a
// BOOTP/DHCP datagram.
//
// Ingress ARP requests are answered and ingress DHCP replies are fed
// to the translator's initiator state machine transparently; any
// frame produced as a side effect (an ARP reply, a DHCP DISCOVER or
// REQUEST) is written straight back out on the underlying Adapter
// before Read returns to its caller.
type TranslatorAdapter struct {
	Adapter
	Translator *translator.Translator

	buf []byte
}

// NewTranslatorAdapter wraps adapter, sizing its internal read buffer
// to the interface MTU plus Ethernet framing.
func NewTranslatorAdapter(adapter Adapter, t *translator.Translator) *TranslatorAdapter {
	mtu := adapter.Interface().MTU

	return &TranslatorAdapter{
		Adapter:    adapter,
		Translator: t,
		buf:        make([]byte, mtu+18),
	}
}

// Read returns the next IP packet. ARP and DHCP frames are consumed
// internally and never surface here; the loop keeps reading from the
// underlying Adapter until a frame yields an IP payload, a read error
// occurs, or writing a queued ARP/DHCP frame back out fails.
func (a *TranslatorAdapter) Read(b []byte) (int, error) {
	for {
		n, err := a.Adapter.Read(a.buf)

		if err != nil {
			return 0, err
		}

		frame := make([]byte, n)
		copy(frame, a.buf[:n])

		payload, err := a.Translator.EthernetToIP(frame)

		if err != nil {
			continue
		}

		if err := a.flushOutbound(); err != nil {
			return 0, err
		}

		if payload == nil {
			continue
		}

		return copy(b, payload), nil
	}
}

// Write accepts an IP packet, frames it for the underlying Adapter,
// and writes it. It reports the length of the IP packet accepted, not
// the framed length, matching the io.Writer contract against b.
func (a *TranslatorAdapter) Write(b []byte) (int, error) {
	frame, err := a.Translator.IPToEthernet(b)

	if err != nil {
		return 0, fmt.Errorf("tuntap: framing outbound packet: %w", err)
	}

	if err := a.flushOutbound(); err != nil {
		return 0, err
	}

	if _, err := a.Adapter.Write(frame); err != nil {
		return 0, err
	}

	return len(b), nil
}

// flushOutbound drains any ARP reply and DHCP frames the translator
// has queued as a side effect of the last operation, writing each
// directly to the underlying Adapter.
func (a *TranslatorAdapter) flushOutbound() error {
	for a.Translator.HasPendingARPReply() {
		if _, err := a.Adapter.Write(a.Translator.PopARPReply()); err != nil {
			return err
		}
	}

	for a.Translator.HasPendingDHCP() {
		if _, err := a.Adapter.Write(a.Translator.PopDHCPPacket()); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the translator's internal queues in addition to
// closing the underlying Adapter.
func (a *TranslatorAdapter) Close() error {
	_ = a.Translator.Close()

	return a.Adapter.Close()
}
