package auth

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/vitalvas/radiusd/pkg/packet"
)

// Tunnel attribute values for VLAN assignment (RFC 3580)
const (
	tunnelTypeVLAN      = 13
	tunnelMediumType802 = 6
)

// WISPr vendor attributes used for captive-portal redirection
const (
	wisprVendorID         = 14122
	wisprRedirectionURL   = 4
	wisprBandwidthMaxUp   = 7
	wisprBandwidthMaxDown = 8
)

// MACEntry describes a known device and its reply attributes
type MACEntry struct {
	VLAN              int
	BandwidthUpKbps   int
	BandwidthDownKbps int
}

// MACAuthBackend implements MAC Authentication Bypass: the username
// of the Access-Request is a device MAC address and the password is
// ignored. Known devices get their configured VLAN; unknown devices
// are rejected unless accept_unknown places them on the guest VLAN
// behind a captive portal.
type MACAuthBackend struct {
	name          string
	known         map[string]MACEntry
	acceptUnknown bool
	guestVLAN     int
	portalURL     string
}

// MACAuthConfig configures a MACAuthBackend
type MACAuthConfig struct {
	Known         map[string]MACEntry
	AcceptUnknown bool
	GuestVLAN     int
	PortalURL     string
}

// NewMACAuthBackend creates a MAC bypass backend. Known MAC keys are
// normalized so any common notation matches on lookup.
func NewMACAuthBackend(name string, cfg MACAuthConfig) *MACAuthBackend {
	known := make(map[string]MACEntry, len(cfg.Known))
	for mac, entry := range cfg.Known {
		known[NormalizeMAC(mac)] = entry
	}

	return &MACAuthBackend{
		name:          name,
		known:         known,
		acceptUnknown: cfg.AcceptUnknown,
		guestVLAN:     cfg.GuestVLAN,
		portalURL:     cfg.PortalURL,
	}
}

// NormalizeMAC strips separators and lowercases a MAC address so
// "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff" and "aabb.ccdd.eeff" all
// compare equal. Returns the input lowercased if it does not look
// like a MAC.
func NormalizeMAC(s string) string {
	cleaned := strings.ToLower(strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.':
			return -1
		}
		return r
	}, s))

	if len(cleaned) != 12 {
		return strings.ToLower(s)
	}
	return cleaned
}

// Name implements Backend
func (b *MACAuthBackend) Name() string {
	return b.name
}

// Authenticate implements Backend
func (b *MACAuthBackend) Authenticate(_ context.Context, username string, _ Credential) (Verdict, error) {
	mac := NormalizeMAC(username)
	if len(mac) != 12 {
		return Reject("username is not a MAC address"), nil
	}

	if entry, ok := b.known[mac]; ok {
		return Accept(b.replyAttributes(entry)...), nil
	}

	if !b.acceptUnknown {
		return Reject("unknown MAC address"), nil
	}

	// Guest onboarding: park the device on the guest VLAN and point
	// it at the captive portal
	verdict := Accept(vlanAttributes(b.guestVLAN)...)
	if b.portalURL != "" {
		redirect := &packet.VendorAttribute{
			VendorID:   wisprVendorID,
			VendorType: wisprRedirectionURL,
			Value:      []byte(b.portalURL),
		}
		verdict.ReplyAttributes = append(verdict.ReplyAttributes, redirect.ToVSA())
	}

	return verdict, nil
}

func (b *MACAuthBackend) replyAttributes(entry MACEntry) []*packet.Attribute {
	attrs := vlanAttributes(entry.VLAN)

	if entry.BandwidthUpKbps > 0 {
		up := &packet.VendorAttribute{
			VendorID:   wisprVendorID,
			VendorType: wisprBandwidthMaxUp,
			Value:      integerBytes(uint32(entry.BandwidthUpKbps)),
		}
		attrs = append(attrs, up.ToVSA())
	}

	if entry.BandwidthDownKbps > 0 {
		down := &packet.VendorAttribute{
			VendorID:   wisprVendorID,
			VendorType: wisprBandwidthMaxDown,
			Value:      integerBytes(uint32(entry.BandwidthDownKbps)),
		}
		attrs = append(attrs, down.ToVSA())
	}

	return attrs
}

func integerBytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func vlanAttributes(vlan int) []*packet.Attribute {
	if vlan <= 0 {
		return nil
	}

	return []*packet.Attribute{
		packet.NewIntegerAttribute(packet.AttrTunnelType, tunnelTypeVLAN),
		packet.NewIntegerAttribute(packet.AttrTunnelMediumType, tunnelMediumType802),
		packet.NewStringAttribute(packet.AttrTunnelPrivateGroupID, strconv.Itoa(vlan)),
	}
}
