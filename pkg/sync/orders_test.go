package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/mapper"
	"github.com/wooconduit/conduit/pkg/models"
	syncpkg "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func orderRecord(t *testing.T, id int64, modified string, fields map[string]interface{}) *woocommerce.Record {
	t.Helper()

	data := map[string]interface{}{
		"id":                id,
		"status":            "processing",
		"currency":          "USD",
		"date_created_gmt":  "2026-01-09T12:00:00",
		"date_modified_gmt": modified,
	}
	for k, v := range fields {
		data[k] = v
	}

	record, err := woocommerce.ParseRecord("orders", woocommerce.RecordFull, data)
	require.NoError(t, err)
	return record
}

func sameAddress() map[string]interface{} {
	return map[string]interface{}{
		"first_name": "Jane",
		"last_name":  "Doe",
		"address_1":  "1 Main St",
		"city":       "Springfield",
		"postcode":   "12345",
		"country":    "US",
		"email":      "jane@example.com",
	}
}

func TestSyncOrder_CreatesGuestOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-08T08:00:00", map[string]interface{}{
		"name": "Blue Mug",
		"sku":  "MUG-BLUE",
	})
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id":    float64(0),
		"total":          "105.00",
		"total_tax":      "10.00",
		"shipping_total": "5.00",
		"billing":        sameAddress(),
		"shipping":       sameAddress(),
		"line_items": []interface{}{
			map[string]interface{}{
				"id":           float64(9001),
				"product_id":   float64(101),
				"name":         "Blue Mug",
				"quantity":     float64(10),
				"subtotal":     "90.00",
				"subtotal_tax": "10.00",
			},
		},
		"shipping_lines": []interface{}{
			map[string]interface{}{"method_id": "flat_rate"},
		},
	})

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	assert.Equal(t, syncpkg.ActionCreated, outcome.Action)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, models.DocStatusSubmitted, order.DocStatus)
	assert.Equal(t, "105.00", order.Total.StringFixed(2))
	assert.Equal(t, "Flat Rate Shipping", order.ShippingRule)
	assert.Equal(t, "2026-01-10T10:00:00", order.SyncHash)

	// Guest buyers key on the remote order id
	customer, err := env.customers.GetByName(ctx, "Guest-500")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, customer.ID, order.CustomerID)

	// Identical billing and shipping collapse into one row serving both
	require.NotNil(t, order.BillingAddressID)
	require.NotNil(t, order.ShippingAddressID)
	assert.Equal(t, *order.BillingAddressID, *order.ShippingAddressID)
	require.Len(t, env.customers.addresses, 1)
	assert.Equal(t, "both", env.customers.addresses[0].Kind)

	// Tax-inclusive unit rate: (90 + 10) / 10
	require.Len(t, order.Lines, 1)
	line := order.Lines[0]
	assert.Equal(t, "MUG-BLUE", line.ItemCode)
	assert.True(t, line.Rate.Equal(decimal.RequireFromString("10")), "rate %s", line.Rate)
	assert.True(t, line.Amount.Equal(decimal.RequireFromString("100")), "amount %s", line.Amount)
	assert.Equal(t, int64(9001), line.RemoteLineID)
}

func TestSyncOrder_RegisteredCustomerName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	billing := sameAddress()
	billing["company"] = "Acme Co"
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(77),
		"total":       "10.00",
		"billing":     billing,
		"line_items":  []interface{}{},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	customer, err := env.customers.GetByName(ctx, "jane@example.com-Acme Co")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "jane@example.com", customer.Email)
	assert.Equal(t, "Jane", customer.FirstName)
	assert.Equal(t, "All Customer Groups", customer.CustomerGroup)
	assert.Equal(t, int64(77), customer.RemoteID)
}

func TestSyncOrder_PreTaxRateWithoutActualTaxes(t *testing.T) {
	env := newTestEnv(t)
	settings := env.server.Settings.GetValue()
	settings.UseActualTaxes = false
	settings.TaxTemplate = "Standard VAT"
	env.server.Settings.Data = settings
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-08T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "100.00",
		"billing":     sameAddress(),
		"line_items": []interface{}{
			map[string]interface{}{
				"product_id":   float64(101),
				"quantity":     float64(10),
				"subtotal":     "90.00",
				"subtotal_tax": "10.00",
			},
		},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	assert.True(t, order.Lines[0].Rate.Equal(decimal.RequireFromString("9")), "rate %s", order.Lines[0].Rate)
	assert.Equal(t, "Standard VAT", order.TaxTemplate)
}

func TestSyncOrder_StampsServerDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-08T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items": []interface{}{
			map[string]interface{}{
				"product_id": float64(101),
				"quantity":   float64(1),
				"subtotal":   "10.00",
			},
		},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	assert.Equal(t, "Conduit Test Co", order.Company)
	assert.Equal(t, "Standard Selling", order.PriceList)

	// Actual tax lines are on, so no template applies
	assert.Empty(t, order.TaxTemplate)

	require.Len(t, order.Lines, 1)
	assert.Equal(t, "Stores - C", order.Lines[0].Warehouse)
}

func TestSyncOrder_DeletedProductPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items": []interface{}{
			map[string]interface{}{
				"product_id": float64(0),
				"name":       "Long Gone Product",
				"quantity":   float64(1),
				"subtotal":   "10.00",
			},
			map[string]interface{}{
				"product_id": float64(999),
				"name":       "Also Gone",
				"quantity":   float64(1),
				"subtotal":   "0.00",
			},
		},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, models.DeletedProductCode, order.Lines[0].ItemCode)
	assert.Equal(t, "Long Gone Product", order.Lines[0].ItemName)
	assert.Equal(t, models.DeletedProductCode, order.Lines[1].ItemCode)

	// Both lines share the one placeholder item
	placeholder, err := env.items.GetByCode(ctx, models.DeletedProductCode)
	require.NoError(t, err)
	require.NotNil(t, placeholder)
}

func TestSyncOrder_EmptyTotalFallsBackToLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-08T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id":    float64(0),
		"total":          "",
		"shipping_total": "5.00",
		"billing":        sameAddress(),
		"line_items": []interface{}{
			map[string]interface{}{
				"product_id":   float64(101),
				"quantity":     float64(2),
				"subtotal":     "18.00",
				"subtotal_tax": "2.00",
			},
		},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	// 2 * (18 + 2)/2 + 5 shipping
	assert.True(t, order.Total.Equal(decimal.RequireFromString("25")), "total %s", order.Total)
}

func TestSyncOrder_SkipsOrdersBeforeCutover(t *testing.T) {
	env := newTestEnv(t)
	env.config.MinOrderDate = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	env.engine = syncpkg.NewEngine(
		newFakeSource(env.client),
		env.locker,
		mapper.New(testLogger()),
		newFakeServerRepo(env.server),
		env.items, env.orders, env.customers, env.payments, env.states,
		nil, env.config, testLogger(),
	)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	assert.Equal(t, syncpkg.ActionSkipped, outcome.Action)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestSyncOrder_CapturesPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id":          float64(0),
		"total":                "42.00",
		"payment_method":       "stripe",
		"payment_method_title": "Credit Card",
		"transaction_id":       "txn_123",
		"date_paid_gmt":        "2026-01-10T09:55:00",
		"billing":              sameAddress(),
		"line_items":           []interface{}{},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)

	payments, err := env.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Stripe Account - C", payments[0].BankAccount)
	assert.Equal(t, "stripe", payments[0].Method)
	assert.Equal(t, "txn_123", payments[0].Reference)
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("42")))

	// A second pass must not double-book the payment
	_, err = env.engine.SyncOrder(ctx, env.server, 500, true)
	require.NoError(t, err)
	payments, err = env.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSyncOrder_PaymentWaitsForDatePaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id":    float64(0),
		"total":          "42.00",
		"payment_method": "stripe",
		"billing":        sameAddress(),
		"line_items":     []interface{}{},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	payments, err := env.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// The store marks it paid later; the next pass captures it
	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T11:00:00", map[string]interface{}{
		"customer_id":    float64(0),
		"total":          "42.00",
		"payment_method": "stripe",
		"date_paid_gmt":  "2026-01-10T10:55:00",
		"billing":        sameAddress(),
		"line_items":     []interface{}{},
	})

	_, err = env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	payments, err = env.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSyncOrder_UnmappedPaymentMethodFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id":    float64(0),
		"total":          "42.00",
		"payment_method": "cod",
		"date_paid_gmt":  "2026-01-10T09:55:00",
		"billing":        sameAddress(),
		"line_items":     []interface{}{},
	})

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.Error(t, err)
	assert.True(t, woocommerce.IsValidation(err))
	assert.Equal(t, syncpkg.ActionFailed, outcome.Action)
}

func TestSyncOrder_PullsStatusWhenRemoteNewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})
	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	env.client.orders[500] = orderRecord(t, 500, time.Now().UTC().Add(time.Hour).Format(woocommerce.DateFormat), map[string]interface{}{
		"customer_id": float64(0),
		"status":      "completed",
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	assert.Equal(t, syncpkg.ActionPulled, outcome.Action)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, env.client.orders[500].RawDateModified, order.SyncHash)
}

func TestSyncOrder_PushesStatusWhenLocalNewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})
	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	require.NoError(t, env.orders.UpdateStatus(ctx, order.ID, models.OrderStatusCancelled))
	require.NoError(t, env.orders.SetSyncHash(ctx, order.ID, ""))

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	assert.Equal(t, syncpkg.ActionPushed, outcome.Action)

	assert.Equal(t, "cancelled", env.client.orders[500].GetString("status"))
}

func TestSyncOrder_SkipsWhenHashMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})
	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	outcome, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)
	assert.Equal(t, syncpkg.ActionSkipped, outcome.Action)
}

func TestSyncOrder_CancelledOrderStaysDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"status":      "cancelled",
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})

	_, err := env.engine.SyncOrder(ctx, env.server, 500, false)
	require.NoError(t, err)

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusDraft, order.DocStatus)
}
