package packet

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Attribute represents a RADIUS attribute-value pair.
// Value interpretation (string, integer, address) is type-dependent;
// the codec itself treats it as opaque bytes.
type Attribute struct {
	Type  uint8
	Value []byte
}

// VendorAttribute represents a vendor-specific sub-attribute carried
// inside a Vendor-Specific (26) attribute.
type VendorAttribute struct {
	VendorID   uint32
	VendorType uint8
	Value      []byte
}

// NewAttribute creates a new RADIUS attribute with a raw value
func NewAttribute(attrType uint8, value []byte) *Attribute {
	return &Attribute{Type: attrType, Value: value}
}

// NewStringAttribute creates an attribute with a text value
func NewStringAttribute(attrType uint8, value string) *Attribute {
	return &Attribute{Type: attrType, Value: []byte(value)}
}

// NewIntegerAttribute creates an attribute with a 32-bit big-endian value
func NewIntegerAttribute(attrType uint8, value uint32) *Attribute {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return &Attribute{Type: attrType, Value: buf}
}

// NewIPAttribute creates an attribute holding an IPv4 address
func NewIPAttribute(attrType uint8, ip net.IP) *Attribute {
	v4 := ip.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	value := make([]byte, 4)
	copy(value, v4)
	return &Attribute{Type: attrType, Value: value}
}

// wireLength is the encoded size of the attribute including its header
func (a *Attribute) wireLength() int {
	return AttributeHeaderLength + len(a.Value)
}

// String returns the attribute value interpreted as text
func (a *Attribute) String() string {
	return string(a.Value)
}

// Integer returns the attribute value interpreted as a 32-bit big-endian integer
func (a *Attribute) Integer() (uint32, error) {
	if len(a.Value) != 4 {
		return 0, fmt.Errorf("attribute %d: integer value must be 4 bytes, got %d", a.Type, len(a.Value))
	}
	return binary.BigEndian.Uint32(a.Value), nil
}

// IP returns the attribute value interpreted as an IPv4 address
func (a *Attribute) IP() (net.IP, error) {
	if len(a.Value) != 4 {
		return nil, fmt.Errorf("attribute %d: address value must be 4 bytes, got %d", a.Type, len(a.Value))
	}
	return net.IPv4(a.Value[0], a.Value[1], a.Value[2], a.Value[3]), nil
}

// NewVendorAttribute creates a new vendor-specific sub-attribute
func NewVendorAttribute(vendorID uint32, vendorType uint8, value []byte) *VendorAttribute {
	return &VendorAttribute{VendorID: vendorID, VendorType: vendorType, Value: value}
}

// ToVSA wraps the vendor attribute into a standard Vendor-Specific (26) attribute.
// VSA payload: Vendor-ID(4) + Vendor-Type(1) + Vendor-Length(1) + Vendor-Data
func (va *VendorAttribute) ToVSA() *Attribute {
	payload := make([]byte, VendorSpecificHeaderLength+len(va.Value))
	binary.BigEndian.PutUint32(payload[0:4], va.VendorID)
	payload[4] = va.VendorType
	payload[5] = uint8(len(va.Value) + 2)
	copy(payload[6:], va.Value)

	return &Attribute{Type: AttrVendorSpecific, Value: payload}
}

// ParseVSA unwraps a Vendor-Specific (26) attribute. Sub-attribute data
// is preserved as opaque bytes so unknown vendor types pass through
// unchanged.
func ParseVSA(attr *Attribute) (*VendorAttribute, error) {
	if attr.Type != AttrVendorSpecific {
		return nil, fmt.Errorf("not a vendor-specific attribute (type %d)", attr.Type)
	}

	if len(attr.Value) < VendorSpecificHeaderLength {
		return nil, fmt.Errorf("%w: VSA payload %d bytes", ErrMalformedAttribute, len(attr.Value))
	}

	vendorLength := attr.Value[5]
	if int(vendorLength) != len(attr.Value)-4 {
		return nil, fmt.Errorf("%w: vendor length %d, payload %d", ErrMalformedAttribute, vendorLength, len(attr.Value)-4)
	}

	return &VendorAttribute{
		VendorID:   binary.BigEndian.Uint32(attr.Value[0:4]),
		VendorType: attr.Value[4],
		Value:      attr.Value[6:],
	}, nil
}
