package server

import (
	"fmt"
	"net"
	"sort"

	"github.com/vitalvas/radiusd/pkg/auth"
)

// Client is one resolved NAS entry from the configuration
type Client struct {
	Name    string
	Network *net.IPNet
	Secret  []byte

	Protocols                   []auth.Protocol
	RequireMessageAuthenticator bool

	// CoAPort is where server-originated Disconnect/CoA requests go
	CoAPort int
}

// AllowsProtocol reports whether the client may use the given
// authentication protocol.
func (c *Client) AllowsProtocol(p auth.Protocol) bool {
	for _, allowed := range c.Protocols {
		if allowed == p {
			return true
		}
	}
	return false
}

// ClientTable resolves source addresses to client entries. Built once
// at startup and never mutated, so lookups need no locking.
type ClientTable struct {
	clients []*Client
}

// NewClientTable parses the configured clients. Single IPs become
// /32 (or /128) networks. Entries are ordered most-specific first so
// an exact host match beats an overlapping network.
func NewClientTable(configs []ClientConfig) (*ClientTable, error) {
	clients := make([]*Client, 0, len(configs))

	for _, cc := range configs {
		network, err := parseClientNetwork(cc.Address)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cc.Address, err)
		}

		protocols := cc.Protocols
		if len(protocols) == 0 {
			protocols = []auth.Protocol{auth.ProtocolPAP, auth.ProtocolCHAP}
		}

		// Mandatory unless the operator explicitly opts this NAS out
		requireMA := true
		if cc.RequireMessageAuthenticator != nil {
			requireMA = *cc.RequireMessageAuthenticator
		}

		coaPort := cc.CoAPort
		if coaPort == 0 {
			coaPort = DefaultCoAPort
		}

		clients = append(clients, &Client{
			Name:                        cc.Name,
			Network:                     network,
			Secret:                      []byte(cc.Secret),
			Protocols:                   protocols,
			RequireMessageAuthenticator: requireMA,
			CoAPort:                     coaPort,
		})
	}

	sort.SliceStable(clients, func(i, j int) bool {
		onesI, _ := clients[i].Network.Mask.Size()
		onesJ, _ := clients[j].Network.Mask.Size()
		return onesI > onesJ
	})

	return &ClientTable{clients: clients}, nil
}

// Lookup finds the client entry covering the source IP
func (t *ClientTable) Lookup(ip net.IP) (*Client, bool) {
	for _, client := range t.clients {
		if client.Network.Contains(ip) {
			return client, true
		}
	}
	return nil, false
}

func parseClientNetwork(address string) (*net.IPNet, error) {
	if _, network, err := net.ParseCIDR(address); err == nil {
		return network, nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("not an IP or CIDR network")
	}

	bits := 128
	if ip.To4() != nil {
		bits = 32
	}

	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
