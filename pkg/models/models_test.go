package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/models"
)

func TestServer_NormalizeURL(t *testing.T) {
	cases := []struct {
		in     string
		url    string
		domain string
	}{
		{"https://shop.example.com", "https://shop.example.com", "shop.example.com"},
		{"shop.example.com", "https://shop.example.com", "shop.example.com"},
		{"https://shop.example.com/", "https://shop.example.com", "shop.example.com"},
		{"https://shop.example.com/store/?utm=x#top", "https://shop.example.com/store", "shop.example.com"},
		{"http://localhost:8080", "http://localhost:8080", "localhost:8080"},
	}

	for _, tc := range cases {
		server := &models.WooCommerceServer{URL: tc.in}
		require.NoError(t, server.NormalizeURL(), "url %q", tc.in)
		assert.Equal(t, tc.url, server.URL)
		assert.Equal(t, tc.domain, server.Domain)
	}
}

func TestServer_NormalizeURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "https://"} {
		server := &models.WooCommerceServer{URL: raw}
		assert.Error(t, server.NormalizeURL(), "url %q", raw)
	}
}

func TestServer_APIBase(t *testing.T) {
	server := &models.WooCommerceServer{URL: "https://shop.example.com"}
	assert.Equal(t, "https://shop.example.com/wp-json/wc/v3", server.APIBase())
}

func TestCustomerName(t *testing.T) {
	assert.Equal(t, "jane@example.com", models.CustomerName("jane@example.com", ""))
	assert.Equal(t, "jane@example.com-Acme Co", models.CustomerName("jane@example.com", "Acme Co"))
	assert.Equal(t, "jane@example.com", models.CustomerName(" jane@example.com ", "  "))
}

func TestGuestCustomerName(t *testing.T) {
	assert.Equal(t, "Guest-512", models.GuestCustomerName(512))
}

func TestAddress_Fingerprint(t *testing.T) {
	a := &models.Address{
		FirstName: "Jane",
		LastName:  "Doe",
		Address1:  "12 Rue de la Paix",
		City:      "Paris",
		Postcode:  "75002",
		Country:   "FR",
	}
	b := &models.Address{
		FirstName: "  jane ",
		LastName:  "DOE",
		Address1:  "12 rue de la paix",
		City:      "paris",
		Postcode:  "75002",
		Country:   "fr",
	}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Address2 = "Apt 3"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// Kind and email don't participate, so billing and shipping copies of the
	// same address collapse to one row
	c := *a
	c.Kind = "shipping"
	c.Email = "jane@example.com"
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
}
