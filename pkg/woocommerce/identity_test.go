package woocommerce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func TestIdentity_RoundTrip(t *testing.T) {
	identity := woocommerce.Identity("shop.example.com", 42)
	assert.Equal(t, "shop.example.com~42", identity)

	domain, remoteID, err := woocommerce.ParseIdentity(identity)
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", domain)
	assert.Equal(t, int64(42), remoteID)
}

func TestParseIdentity_DomainWithTilde(t *testing.T) {
	// Only the last delimiter separates the id, so a tilde earlier in the
	// string stays part of the domain
	domain, remoteID, err := woocommerce.ParseIdentity("a~b~7")
	require.NoError(t, err)
	assert.Equal(t, "a~b", domain)
	assert.Equal(t, int64(7), remoteID)
}

func TestParseIdentity_Invalid(t *testing.T) {
	cases := []string{
		"",
		"no-delimiter",
		"~42",
		"shop.example.com~",
		"shop.example.com~abc",
	}
	for _, identity := range cases {
		_, _, err := woocommerce.ParseIdentity(identity)
		assert.Error(t, err, "identity %q should not parse", identity)
	}
}

func TestIdentityDomain(t *testing.T) {
	domain, err := woocommerce.IdentityDomain("store.test~9001")
	require.NoError(t, err)
	assert.Equal(t, "store.test", domain)
}
