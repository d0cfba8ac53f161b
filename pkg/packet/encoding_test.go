package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(CodeAccessRequest, 42)
	copy(p.Authenticator[:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10})
	p.AddAttribute(NewStringAttribute(AttrUserName, "nemo"))
	p.AddAttribute(NewIntegerAttribute(AttrNASPort, 3))
	p.AddAttribute(NewAttribute(AttrState, []byte{0xde, 0xad, 0xbe, 0xef}))

	data, err := p.Encode()
	require.NoError(t, err)
	assert.Len(t, data, p.Length())

	decoded, err := Decode(data, MaxPacketLength)
	require.NoError(t, err)

	assert.Equal(t, p.Code, decoded.Code)
	assert.Equal(t, p.Identifier, decoded.Identifier)
	assert.Equal(t, p.Authenticator, decoded.Authenticator)
	require.Len(t, decoded.Attributes, 3)
	for i, attr := range p.Attributes {
		assert.Equal(t, attr.Type, decoded.Attributes[i].Type)
		assert.Equal(t, attr.Value, decoded.Attributes[i].Value)
	}

	// decode(encode(decode(raw))) == decode(raw)
	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodePreservesAttributeOrder(t *testing.T) {
	p := New(CodeAccessRequest, 1)
	p.AddAttribute(NewAttribute(AttrEAPMessage, []byte("frag-one")))
	p.AddAttribute(NewAttribute(AttrState, []byte("s1")))
	p.AddAttribute(NewAttribute(AttrEAPMessage, []byte("frag-two")))

	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data, MaxPacketLength)
	require.NoError(t, err)

	frags := decoded.GetAttributes(AttrEAPMessage)
	require.Len(t, frags, 2)
	assert.Equal(t, []byte("frag-one"), frags[0].Value)
	assert.Equal(t, []byte("frag-two"), frags[1].Value)
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only partial", make([]byte, 10)},
		{"nineteen bytes", make([]byte, 19)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, MaxPacketLength)
			assert.ErrorIs(t, err, ErrTruncatedPacket)
		})
	}
}

func TestDecodeOversized(t *testing.T) {
	data := make([]byte, 2048)
	_, err := Decode(data, 1024)
	assert.ErrorIs(t, err, ErrOversizedPacket)
}

func TestDecodeLengthMismatch(t *testing.T) {
	p := New(CodeAccessRequest, 7)
	data, err := p.Encode()
	require.NoError(t, err)

	// Declared length larger than buffer
	data[3] = 0xff
	_, err = Decode(data, MaxPacketLength)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecodeMalformedAttribute(t *testing.T) {
	p := New(CodeAccessRequest, 7)
	p.AddAttribute(NewStringAttribute(AttrUserName, "alice"))
	data, err := p.Encode()
	require.NoError(t, err)

	// Attribute length below the 2-byte minimum
	corrupt := append([]byte(nil), data...)
	corrupt[PacketHeaderLength+1] = 1
	_, err = Decode(corrupt, MaxPacketLength)
	assert.ErrorIs(t, err, ErrMalformedAttribute)

	// Attribute length overrunning the packet
	corrupt = append([]byte(nil), data...)
	corrupt[PacketHeaderLength+1] = 0xff
	_, err = Decode(corrupt, MaxPacketLength)
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}

func TestEncodeRejectsOverlongAttribute(t *testing.T) {
	p := New(CodeAccessAccept, 1)
	p.AddAttribute(NewAttribute(AttrReplyMessage, make([]byte, 300)))

	_, err := p.Encode()
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}
