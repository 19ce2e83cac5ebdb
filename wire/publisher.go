package wire

import (
	"fmt"
	"os"
)

// Publisher describes an advertised endpoint: the fully-qualified topic it
// publishes on, a type-name used for payload interpretation, and the
// network address subscribers should connect to for raw delivery.
//
// The spec treats Publisher as an opaque externally-defined record; this
// is the concrete shape used throughout this module so AdvertisePacket has
// something real to pack and round-trip.
type Publisher struct {
	FullyQualifiedTopic string
	TypeName            string
	Address             string
}

// MsgLength returns the number of bytes Pack will write.
func (p Publisher) MsgLength() int {
	return 8 + len(p.FullyQualifiedTopic) + 8 + len(p.TypeName) + 8 + len(p.Address)
}

// Pack serializes p as three length-prefixed UTF-8 strings. It returns 0
// if buf is too small.
func (p Publisher) Pack(buf []byte) int {
	need := p.MsgLength()
	if buf == nil || len(buf) < need {
		fmt.Fprintln(os.Stderr, "wire: buffer too small to pack publisher")
		return 0
	}

	off := 0
	for _, s := range []string{p.FullyQualifiedTopic, p.TypeName, p.Address} {
		putString(buf[off:], s)
		off += 8 + len(s)
	}
	return off
}

// UnpackPublisher decodes a Publisher from the front of buf, returning the
// number of bytes consumed, or 0 on failure.
func UnpackPublisher(buf []byte) (Publisher, int) {
	fqtn, n1, ok := getString(buf)
	if !ok {
		fmt.Fprintln(os.Stderr, "wire: buffer truncated while unpacking publisher topic")
		return Publisher{}, 0
	}
	typeName, n2, ok := getString(buf[n1:])
	if !ok {
		fmt.Fprintln(os.Stderr, "wire: buffer truncated while unpacking publisher type")
		return Publisher{}, 0
	}
	address, n3, ok := getString(buf[n1+n2:])
	if !ok {
		fmt.Fprintln(os.Stderr, "wire: buffer truncated while unpacking publisher address")
		return Publisher{}, 0
	}

	return Publisher{
		FullyQualifiedTopic: fqtn,
		TypeName:            typeName,
		Address:             address,
	}, int(n1 + n2 + n3)
}

// AdvertisePacket announces a Publisher to the network.
type AdvertisePacket struct {
	Header    Header
	Publisher Publisher
}

// Length returns the number of bytes the packet occupies on the wire.
func (a AdvertisePacket) Length() int {
	return HeaderLength(a.Header) + a.Publisher.MsgLength()
}

// Pack serializes the header followed by the delegated Publisher payload.
// It returns 0 if either step fails.
func (a AdvertisePacket) Pack(buf []byte) int {
	hn := PackHeader(a.Header, buf)
	if hn == 0 {
		return 0
	}
	pn := a.Publisher.Pack(buf[hn:])
	if pn == 0 {
		return 0
	}
	return hn + pn
}

// UnpackAdvertiseBody decodes the Publisher payload that follows an
// already-unpacked Header, mirroring UnpackSubscriptionBody's split.
func UnpackAdvertiseBody(buf []byte, h Header) (AdvertisePacket, int) {
	pub, n := UnpackPublisher(buf)
	if n == 0 {
		return AdvertisePacket{}, 0
	}
	return AdvertisePacket{Header: h, Publisher: pub}, n
}
