package woocommerce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func TestListOptions_Values(t *testing.T) {
	after := time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)
	opts := woocommerce.ListOptions{
		PerPage:       50,
		Offset:        100,
		ModifiedAfter: &after,
		OrderBy:       "modified",
		Order:         "asc",
		Status:        "any",
		Include:       []int64{3, 1, 2},
		Fields:        []string{"id", "date_modified_gmt"},
	}

	q := opts.Values()
	assert.Equal(t, "50", q.Get("per_page"))
	assert.Equal(t, "100", q.Get("offset"))
	assert.Equal(t, "2026-02-01T10:30:00", q.Get("modified_after"))
	assert.Equal(t, "modified", q.Get("orderby"))
	assert.Equal(t, "asc", q.Get("order"))
	assert.Equal(t, "any", q.Get("status"))
	assert.Equal(t, "3,1,2", q.Get("include"))
	// Fields are sorted so equivalent projections share a cache key
	assert.Equal(t, "date_modified_gmt,id", q.Get("_fields"))
}

func TestListOptions_ZeroValuesOmitted(t *testing.T) {
	q := woocommerce.ListOptions{}.Values()
	assert.Empty(t, q)
}

func TestListOptions_Predicates(t *testing.T) {
	assert.False(t, woocommerce.ListOptions{}.IsProjected())
	assert.True(t, woocommerce.ListOptions{Fields: []string{"id"}}.IsProjected())

	assert.False(t, woocommerce.ListOptions{}.HasExactIDs())
	assert.True(t, woocommerce.ListOptions{Include: []int64{9}}.HasExactIDs())
}

func TestOrderStatus_RoundTrip(t *testing.T) {
	for _, remote := range []string{"pending", "on-hold", "failed", "processing", "completed", "cancelled", "refunded"} {
		local, err := woocommerce.OrderStatusToLocal(remote)
		require.NoError(t, err)

		back, err := woocommerce.OrderStatusToRemote(local)
		require.NoError(t, err)
		assert.Equal(t, remote, back)
	}
}

func TestOrderStatus_Unknown(t *testing.T) {
	_, err := woocommerce.OrderStatusToLocal("checkout-draft")
	assert.Error(t, err)

	_, err = woocommerce.OrderStatusToRemote(models.OrderStatus("Imaginary"))
	assert.Error(t, err)
}
