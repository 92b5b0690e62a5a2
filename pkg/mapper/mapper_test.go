package mapper_test

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/pkg/expressions"
	"github.com/wooconduit/conduit/pkg/mapper"
	"github.com/wooconduit/conduit/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func productContext() *expressions.Context {
	return expressions.NewContext().
		WithRemote(map[string]interface{}{
			"id":             float64(42),
			"name":           "Blue Widget",
			"description":    "A widget, but blue",
			"sku":            "WID-BLUE",
			"regular_price":  "19.99",
			"weight":         "0.5",
			"stock_quantity": float64(12),
		}).
		WithServer(map[string]interface{}{
			"item_group": "Widgets",
		})
}

func TestFieldMapper_Pull(t *testing.T) {
	m := mapper.New(testLogger())

	values, modified := m.Pull(context.Background(), productContext(), mapper.DefaultProductRules())
	require.True(t, modified)

	assert.Equal(t, "Blue Widget", values["name"])
	assert.Equal(t, "WID-BLUE", values["sku"])
	assert.Equal(t, "19.99", values["price"])
	assert.Equal(t, 0.5, values["weight"])
	assert.Equal(t, float64(12), values["stock_qty"])
	assert.Equal(t, "Widgets", values["item_group"])
}

func TestFieldMapper_Pull_UnchangedFieldsOmitted(t *testing.T) {
	m := mapper.New(testLogger())

	mctx := productContext().WithLocal(map[string]interface{}{
		"name":        "Blue Widget",
		"description": "A widget, but blue",
		"sku":         "WID-BLUE",
		"price":       "19.99",
		"weight":      0.5,
		"stock_qty":   float64(12),
		"item_group":  "Widgets",
	})

	values, modified := m.Pull(context.Background(), mctx, mapper.DefaultProductRules())
	assert.False(t, modified)
	assert.Empty(t, values)
}

func TestFieldMapper_Pull_MissingFieldsSkipped(t *testing.T) {
	m := mapper.New(testLogger())

	mctx := expressions.NewContext().WithRemote(map[string]interface{}{
		"name": "Bare Widget",
	})

	values, modified := m.Pull(context.Background(), mctx, mapper.DefaultProductRules())
	require.True(t, modified)

	assert.Equal(t, "Bare Widget", values["name"])
	_, ok := values["sku"]
	assert.False(t, ok, "absent remote fields should not appear in the result")
}

func TestFieldMapper_Pull_Default(t *testing.T) {
	m := mapper.New(testLogger())

	rules := []models.FieldMappingRule{
		{LocalField: "item_group", RemotePath: "categories[0].name", Default: "All Products"},
	}

	values, modified := m.Pull(context.Background(), expressions.NewContext().WithRemote(map[string]interface{}{}), rules)
	require.True(t, modified)
	assert.Equal(t, "All Products", values["item_group"])
}

func TestFieldMapper_Pull_BadCastSkipsRule(t *testing.T) {
	m := mapper.New(testLogger())

	rules := []models.FieldMappingRule{
		{LocalField: "weight", RemotePath: "weight", Cast: "float"},
		{LocalField: "name", RemotePath: "name"},
	}
	mctx := expressions.NewContext().WithRemote(map[string]interface{}{
		"weight": "heavy",
		"name":   "Odd Widget",
	})

	// The bad cast is logged and skipped; later rules still apply
	values, modified := m.Pull(context.Background(), mctx, rules)
	require.True(t, modified)

	_, ok := values["weight"]
	assert.False(t, ok)
	assert.Equal(t, "Odd Widget", values["name"])
}

func TestFieldMapper_Push(t *testing.T) {
	m := mapper.New(testLogger())

	mctx := expressions.NewContext().WithLocal(map[string]interface{}{
		"name":        "Blue Widget v2",
		"description": "A widget, but blue",
		"sku":         "WID-BLUE",
		"price":       "24.99",
		"weight":      0.5,
	})

	remoteDoc := map[string]interface{}{
		"name":          "Blue Widget",
		"description":   "A widget, but blue",
		"sku":           "WID-BLUE",
		"regular_price": "19.99",
		"weight":        "0.5",
	}

	modified := m.Push(context.Background(), mctx, remoteDoc, false, mapper.DefaultProductRules())
	require.True(t, modified)

	assert.Equal(t, "Blue Widget v2", remoteDoc["name"])
	assert.Equal(t, "24.99", remoteDoc["regular_price"])
	// Unchanged fields keep their remote representation
	assert.Equal(t, "0.5", remoteDoc["weight"])
}

func TestFieldMapper_Push_NoChanges(t *testing.T) {
	m := mapper.New(testLogger())

	mctx := expressions.NewContext().WithLocal(map[string]interface{}{
		"name":  "Blue Widget",
		"price": "19.99",
	})

	remoteDoc := map[string]interface{}{
		"name":          "Blue Widget",
		"regular_price": "19.99",
	}

	modified := m.Push(context.Background(), mctx, remoteDoc, false, mapper.DefaultProductRules())
	assert.False(t, modified)
}

func TestFieldMapper_Push_MissingRemotePathOnExistingRecord(t *testing.T) {
	m := mapper.New(testLogger())

	rules := []models.FieldMappingRule{
		{LocalField: "sku", RemotePath: "custom_sku_field", Direction: models.MappingPush},
	}
	mctx := expressions.NewContext().WithLocal(map[string]interface{}{
		"sku": "WID-BLUE",
	})

	// Existing record: the missing path is an error, the rule is skipped
	remoteDoc := map[string]interface{}{"name": "Widget"}
	modified := m.Push(context.Background(), mctx, remoteDoc, false, rules)
	assert.False(t, modified)
	_, ok := remoteDoc["custom_sku_field"]
	assert.False(t, ok)

	// New record: the missing path is tolerated and the value is set
	freshDoc := map[string]interface{}{}
	modified = m.Push(context.Background(), mctx, freshDoc, true, rules)
	assert.True(t, modified)
	assert.Equal(t, "WID-BLUE", freshDoc["custom_sku_field"])
}

func TestFieldMapper_Push_NestedPath(t *testing.T) {
	m := mapper.New(testLogger())

	rules := []models.FieldMappingRule{
		{LocalField: "sku", RemotePath: "dimensions.sku_label", Direction: models.MappingPush},
	}
	mctx := expressions.NewContext().WithLocal(map[string]interface{}{
		"sku": "WID-BLUE",
	})

	doc := map[string]interface{}{}
	modified := m.Push(context.Background(), mctx, doc, true, rules)
	require.True(t, modified)

	nested, ok := doc["dimensions"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "WID-BLUE", nested["sku_label"])
}

func TestFieldMapper_Idempotent(t *testing.T) {
	m := mapper.New(testLogger())

	values, modified := m.Pull(context.Background(), productContext(), mapper.DefaultProductRules())
	require.True(t, modified)

	// Applying the pulled values as the local document yields no further change
	again, modified := m.Pull(context.Background(), productContext().WithLocal(values), mapper.DefaultProductRules())
	assert.False(t, modified)
	assert.Empty(t, again)
}
