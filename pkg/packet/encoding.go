package packet

import (
	"encoding/binary"
	"fmt"
)

// Encode converts a Packet into its binary representation per RFC 2865
// Section 3. The length field is recomputed from actual content.
func (p *Packet) Encode() ([]byte, error) {
	length := p.Length()
	if length > MaxPacketLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrOversizedPacket, length)
	}

	data := make([]byte, length)
	data[0] = byte(p.Code)
	data[1] = p.Identifier
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	copy(data[4:PacketHeaderLength], p.Authenticator[:])

	offset := PacketHeaderLength
	for _, attr := range p.Attributes {
		if len(attr.Value) > MaxAttributeValueLength {
			return nil, fmt.Errorf("%w: attribute %d value %d bytes", ErrMalformedAttribute, attr.Type, len(attr.Value))
		}
		data[offset] = attr.Type
		data[offset+1] = uint8(attr.wireLength())
		copy(data[offset+AttributeHeaderLength:], attr.Value)
		offset += attr.wireLength()
	}

	return data, nil
}

// Decode parses binary data into a Packet per RFC 2865 Section 3.
// maxSize bounds accepted datagram size before any attribute parsing
// begins; pass MaxPacketLength for the protocol default.
func Decode(data []byte, maxSize int) (*Packet, error) {
	if maxSize <= 0 || maxSize > MaxPacketLength {
		maxSize = MaxPacketLength
	}

	if len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrOversizedPacket, len(data), maxSize)
	}

	if len(data) < MinPacketLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedPacket, len(data))
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length != len(data) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, length, len(data))
	}
	if length < MinPacketLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrTruncatedPacket, length)
	}

	p := &Packet{
		Code:       Code(data[0]),
		Identifier: data[1],
	}
	copy(p.Authenticator[:], data[4:PacketHeaderLength])

	offset := PacketHeaderLength
	for offset < length {
		if offset+AttributeHeaderLength > length {
			return nil, fmt.Errorf("%w: incomplete header at offset %d", ErrMalformedAttribute, offset)
		}

		attrLength := int(data[offset+1])
		if attrLength < AttributeHeaderLength {
			return nil, fmt.Errorf("%w: declared length %d", ErrMalformedAttribute, attrLength)
		}
		if offset+attrLength > length {
			return nil, fmt.Errorf("%w: attribute extends beyond packet at offset %d", ErrMalformedAttribute, offset)
		}

		value := make([]byte, attrLength-AttributeHeaderLength)
		copy(value, data[offset+AttributeHeaderLength:offset+attrLength])

		p.Attributes = append(p.Attributes, &Attribute{
			Type:  data[offset],
			Value: value,
		})
		offset += attrLength
	}

	return p, nil
}
