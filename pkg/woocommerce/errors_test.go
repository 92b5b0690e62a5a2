package woocommerce_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func TestErrorPredicates(t *testing.T) {
	notFound := &woocommerce.NotFoundError{Resource: "products", ID: "9"}
	disabled := &woocommerce.SyncDisabledError{ServerID: "srv", Reason: "item sync off"}
	validation := &woocommerce.ValidationError{Resource: "orders", Message: "bad payload"}

	assert.True(t, woocommerce.IsNotFound(notFound))
	assert.True(t, woocommerce.IsSyncDisabled(disabled))
	assert.True(t, woocommerce.IsValidation(validation))

	assert.False(t, woocommerce.IsNotFound(disabled))
	assert.False(t, woocommerce.IsSyncDisabled(validation))
	assert.False(t, woocommerce.IsValidation(notFound))
}

func TestErrorPredicates_Wrapped(t *testing.T) {
	err := fmt.Errorf("sync item: %w", &woocommerce.NotFoundError{Resource: "products", ID: "9"})
	assert.True(t, woocommerce.IsNotFound(err))
}

func TestRemoteError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	err := &woocommerce.RemoteError{StatusCode: 502, Endpoint: "products", Message: "bad gateway", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "502")
}
