package woocommerce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func TestParseRecord_PrefersGMTTimestamp(t *testing.T) {
	rec, err := woocommerce.ParseRecord("products", woocommerce.RecordFull, map[string]interface{}{
		"id":                float64(101),
		"date_modified":     "2026-03-01T09:00:00",
		"date_modified_gmt": "2026-03-01T14:00:00",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(101), rec.ID)
	assert.Equal(t, "2026-03-01T14:00:00", rec.RawDateModified)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), rec.DateModified)
}

func TestParseRecord_FallsBackToLocalTimestamp(t *testing.T) {
	rec, err := woocommerce.ParseRecord("orders", woocommerce.RecordFull, map[string]interface{}{
		"id":            float64(5),
		"date_modified": "2026-03-01T09:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T09:00:00", rec.RawDateModified)
}

func TestParseRecord_MissingTimestampIsAllowed(t *testing.T) {
	rec, err := woocommerce.ParseRecord("products", woocommerce.RecordSummary, map[string]interface{}{
		"id": float64(7),
	})
	require.NoError(t, err)
	assert.Empty(t, rec.RawDateModified)
	assert.True(t, rec.DateModified.IsZero())
}

func TestParseRecord_IDTypes(t *testing.T) {
	for _, id := range []interface{}{float64(33), int64(33), 33} {
		rec, err := woocommerce.ParseRecord("products", woocommerce.RecordFull, map[string]interface{}{"id": id})
		require.NoError(t, err)
		assert.Equal(t, int64(33), rec.ID)
	}
}

func TestParseRecord_Invalid(t *testing.T) {
	_, err := woocommerce.ParseRecord("products", woocommerce.RecordFull, map[string]interface{}{
		"name": "no id here",
	})
	assert.Error(t, err)

	_, err = woocommerce.ParseRecord("products", woocommerce.RecordFull, map[string]interface{}{
		"id":                float64(1),
		"date_modified_gmt": "yesterday",
	})
	assert.Error(t, err)
}

func TestRecord_IsFull(t *testing.T) {
	full, err := woocommerce.ParseRecord("products", woocommerce.RecordFull, map[string]interface{}{"id": float64(1)})
	require.NoError(t, err)
	assert.True(t, full.IsFull([]string{"name", "price"}))

	summary, err := woocommerce.ParseRecord("products", woocommerce.RecordSummary, map[string]interface{}{
		"id":   float64(1),
		"name": "Mug",
	})
	require.NoError(t, err)
	assert.True(t, summary.IsFull([]string{"name"}))
	assert.False(t, summary.IsFull([]string{"name", "price"}))
}

func TestRecord_Getters(t *testing.T) {
	rec, err := woocommerce.ParseRecord("orders", woocommerce.RecordFull, map[string]interface{}{
		"id":          float64(1),
		"status":      "processing",
		"set_paid":    true,
		"customer_id": float64(88),
		"line_items":  []interface{}{map[string]interface{}{"sku": "A"}},
		"billing":     map[string]interface{}{"city": "Lyon"},
	})
	require.NoError(t, err)

	assert.Equal(t, "processing", rec.GetString("status"))
	assert.True(t, rec.GetBool("set_paid"))
	assert.Equal(t, int64(88), rec.GetInt("customer_id"))
	assert.Len(t, rec.GetSlice("line_items"), 1)
	assert.Equal(t, "Lyon", rec.GetMap("billing")["city"])

	assert.Empty(t, rec.GetString("missing"))
	assert.Zero(t, rec.GetInt("missing"))
	assert.Nil(t, rec.GetSlice("missing"))
	assert.Nil(t, rec.GetMap("missing"))
}
