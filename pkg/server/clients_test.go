package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/radiusd/pkg/auth"
)

func TestClientTableLookup(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Name: "single", Address: "192.0.2.1", Secret: "a"},
		{Name: "network", Address: "10.0.0.0/8", Secret: "b"},
	})
	require.NoError(t, err)

	client, ok := table.Lookup(net.ParseIP("192.0.2.1"))
	require.True(t, ok)
	assert.Equal(t, "single", client.Name)

	client, ok = table.Lookup(net.ParseIP("10.20.30.40"))
	require.True(t, ok)
	assert.Equal(t, "network", client.Name)

	_, ok = table.Lookup(net.ParseIP("192.0.2.2"))
	assert.False(t, ok)
}

func TestClientTableMostSpecificWins(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Name: "wide", Address: "10.0.0.0/8", Secret: "wide-secret"},
		{Name: "host", Address: "10.1.1.1", Secret: "host-secret"},
	})
	require.NoError(t, err)

	client, ok := table.Lookup(net.ParseIP("10.1.1.1"))
	require.True(t, ok)
	assert.Equal(t, "host", client.Name)

	client, ok = table.Lookup(net.ParseIP("10.1.1.2"))
	require.True(t, ok)
	assert.Equal(t, "wide", client.Name)
}

func TestClientTableInvalidAddress(t *testing.T) {
	_, err := NewClientTable([]ClientConfig{
		{Address: "not-an-address", Secret: "x"},
	})
	assert.Error(t, err)
}

func TestClientDefaultProtocols(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Address: "192.0.2.1", Secret: "x"},
	})
	require.NoError(t, err)

	client, ok := table.Lookup(net.ParseIP("192.0.2.1"))
	require.True(t, ok)

	assert.True(t, client.AllowsProtocol(auth.ProtocolPAP))
	assert.True(t, client.AllowsProtocol(auth.ProtocolCHAP))
	assert.False(t, client.AllowsProtocol(auth.ProtocolPEAP))
}

func TestClientProtocolAllowList(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Address: "192.0.2.1", Secret: "x", Protocols: []auth.Protocol{auth.ProtocolCHAP}},
	})
	require.NoError(t, err)

	client, _ := table.Lookup(net.ParseIP("192.0.2.1"))
	assert.False(t, client.AllowsProtocol(auth.ProtocolPAP))
	assert.True(t, client.AllowsProtocol(auth.ProtocolCHAP))
}

func TestClientMessageAuthenticatorDefaults(t *testing.T) {
	optOut := false

	table, err := NewClientTable([]ClientConfig{
		{Name: "default", Address: "192.0.2.1", Secret: "x"},
		{Name: "legacy", Address: "192.0.2.2", Secret: "x", RequireMessageAuthenticator: &optOut},
	})
	require.NoError(t, err)

	client, _ := table.Lookup(net.ParseIP("192.0.2.1"))
	assert.True(t, client.RequireMessageAuthenticator)

	client, _ = table.Lookup(net.ParseIP("192.0.2.2"))
	assert.False(t, client.RequireMessageAuthenticator)
}

func TestClientCoAPortDefault(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Name: "default", Address: "192.0.2.1", Secret: "x"},
		{Name: "custom", Address: "192.0.2.2", Secret: "x", CoAPort: 13799},
	})
	require.NoError(t, err)

	client, _ := table.Lookup(net.ParseIP("192.0.2.1"))
	assert.Equal(t, DefaultCoAPort, client.CoAPort)

	client, _ = table.Lookup(net.ParseIP("192.0.2.2"))
	assert.Equal(t, 13799, client.CoAPort)
}

func TestClientTableIPv6(t *testing.T) {
	table, err := NewClientTable([]ClientConfig{
		{Name: "v6", Address: "2001:db8::/32", Secret: "x"},
	})
	require.NoError(t, err)

	_, ok := table.Lookup(net.ParseIP("2001:db8::1"))
	assert.True(t, ok)

	_, ok = table.Lookup(net.ParseIP("2001:db9::1"))
	assert.False(t, ok)
}
