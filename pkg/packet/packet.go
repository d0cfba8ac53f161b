package packet

import (
	"errors"
	"fmt"
)

// Decode/encode failure classes. The server loop maps these onto its
// transport-error handling: all of them result in a silent drop.
var (
	// ErrTruncatedPacket indicates the datagram is shorter than the RADIUS header
	ErrTruncatedPacket = errors.New("truncated packet")
	// ErrOversizedPacket indicates the datagram exceeds the configured maximum
	ErrOversizedPacket = errors.New("oversized packet")
	// ErrLengthMismatch indicates the declared length disagrees with the buffer
	ErrLengthMismatch = errors.New("packet length mismatch")
	// ErrMalformedAttribute indicates an attribute header or length is invalid
	ErrMalformedAttribute = errors.New("malformed attribute")
)

// Packet represents a RADIUS packet as defined in RFC 2865.
// Attribute order is preserved exactly as received: it is significant
// for fragmented EAP-Message and State chains.
type Packet struct {
	Code          Code
	Identifier    uint8
	Authenticator [AuthenticatorLength]byte
	Attributes    []*Attribute
}

// New creates a new RADIUS packet with the specified code and identifier
func New(code Code, identifier uint8) *Packet {
	return &Packet{
		Code:       code,
		Identifier: identifier,
	}
}

// NewResponse creates a response packet for a request, carrying over
// the identifier. The authenticator is filled in at send time.
func (p *Packet) NewResponse(code Code) *Packet {
	return New(code, p.Identifier)
}

// AddAttribute appends an attribute, preserving insertion order
func (p *Packet) AddAttribute(attr *Attribute) {
	p.Attributes = append(p.Attributes, attr)
}

// AddVendorAttribute appends a vendor-specific attribute
func (p *Packet) AddVendorAttribute(va *VendorAttribute) {
	p.AddAttribute(va.ToVSA())
}

// GetAttribute returns the first attribute with the specified type
func (p *Packet) GetAttribute(attrType uint8) (*Attribute, bool) {
	for _, attr := range p.Attributes {
		if attr.Type == attrType {
			return attr, true
		}
	}
	return nil, false
}

// GetAttributes returns all attributes with the specified type, in order
func (p *Packet) GetAttributes(attrType uint8) []*Attribute {
	var attrs []*Attribute
	for _, attr := range p.Attributes {
		if attr.Type == attrType {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// RemoveAttributes removes all attributes with the specified type
func (p *Packet) RemoveAttributes(attrType uint8) int {
	removed := 0
	kept := p.Attributes[:0]
	for _, attr := range p.Attributes {
		if attr.Type == attrType {
			removed++
			continue
		}
		kept = append(kept, attr)
	}
	p.Attributes = kept
	return removed
}

// Length returns the encoded packet length computed from actual content.
// A stored length field is never trusted.
func (p *Packet) Length() int {
	length := PacketHeaderLength
	for _, attr := range p.Attributes {
		length += attr.wireLength()
	}
	return length
}

// String returns a loggable representation of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("Code=%s(%d), ID=%d, Length=%d, Attributes=%d",
		p.Code.String(), uint8(p.Code), p.Identifier, p.Length(), len(p.Attributes))
}
