package mapper

import (
	"fmt"
	"strings"

	"github.com/wooconduit/conduit/pkg/expressions"
	"github.com/wooconduit/conduit/pkg/models"
)

// DefaultProductRules maps the WooCommerce product payload onto the local
// item document. These are the built-in rules; servers can layer their own
// on top.
func DefaultProductRules() []models.FieldMappingRule {
	return []models.FieldMappingRule{
		{LocalField: "name", RemotePath: "name"},
		{LocalField: "description", RemotePath: "description"},
		{LocalField: "sku", RemotePath: "sku"},
		{LocalField: "price", RemotePath: "regular_price", Cast: "string", Direction: models.MappingPull},
		{LocalField: "price", RemotePath: "regular_price", Cast: "string", Direction: models.MappingPush},
		{LocalField: "weight", RemotePath: "weight", Cast: "float"},
		{LocalField: "stock_qty", RemotePath: "stock_quantity", Cast: "float", Direction: models.MappingPull},
		{LocalField: "item_group", Template: "{{ server.item_group }}", Direction: models.MappingPull},
	}
}

// DefaultCustomerRules maps WooCommerce billing fields onto the local
// customer document.
func DefaultCustomerRules() []models.FieldMappingRule {
	return []models.FieldMappingRule{
		{LocalField: "email", RemotePath: "billing.email", Direction: models.MappingPull},
		{LocalField: "first_name", RemotePath: "billing.first_name", Direction: models.MappingPull},
		{LocalField: "last_name", RemotePath: "billing.last_name", Direction: models.MappingPull},
		{LocalField: "company", RemotePath: "billing.company", Direction: models.MappingPull},
		{LocalField: "phone", RemotePath: "billing.phone", Direction: models.MappingPull},
		{LocalField: "customer_group", Template: "{{ server.customer_group }}", Direction: models.MappingPull},
		{LocalField: "territory", Template: "{{ server.territory }}", Direction: models.MappingPull},
	}
}

// featureOwnedPaths are remote fields the sync engine manages itself.
// Attribute comparison and image sync would fight a mapping rule writing the
// same field, so rules touching them are rejected at save time.
var featureOwnedPaths = []string{"images", "image", "attributes", "variations"}

// MergeRules layers store-specific rules over the defaults. A default is
// dropped when an override addresses the same local field in an overlapping
// direction; everything else is kept.
func MergeRules(defaults, overrides []models.FieldMappingRule) []models.FieldMappingRule {
	if len(overrides) == 0 {
		return defaults
	}

	merged := make([]models.FieldMappingRule, 0, len(defaults)+len(overrides))
	for _, def := range defaults {
		replaced := false
		for _, ov := range overrides {
			if rulesOverlap(def, ov) {
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, def)
		}
	}
	return append(merged, overrides...)
}

func rulesOverlap(a, b models.FieldMappingRule) bool {
	if a.LocalField != b.LocalField {
		return false
	}
	return (a.AppliesTo(models.MappingPull) && b.AppliesTo(models.MappingPull)) ||
		(a.AppliesTo(models.MappingPush) && b.AppliesTo(models.MappingPush))
}

// ValidateRules checks store-configured mapping rules before they are saved:
// the remote path must compile, the direction and cast must be known, and
// feature-owned remote fields are off limits.
func ValidateRules(rules []models.FieldMappingRule) error {
	for i, rule := range rules {
		if rule.LocalField == "" {
			return fmt.Errorf("mapping rule %d has no local field", i+1)
		}
		if rule.RemotePath == "" && rule.Template == "" {
			return fmt.Errorf("mapping rule %q has neither a remote path nor a template", rule.LocalField)
		}

		switch rule.Direction {
		case "", models.MappingBoth, models.MappingPull, models.MappingPush:
		default:
			return fmt.Errorf("mapping rule %q has unknown direction %q", rule.LocalField, rule.Direction)
		}

		switch rule.Cast {
		case "", "string", "int", "float", "bool":
		default:
			return fmt.Errorf("mapping rule %q has unknown cast %q", rule.LocalField, rule.Cast)
		}

		if rule.RemotePath != "" {
			if err := expressions.Validate(rule.RemotePath); err != nil {
				return fmt.Errorf("mapping rule %q: %w", rule.LocalField, err)
			}

			root := rule.RemotePath
			if idx := strings.IndexAny(root, ".["); idx >= 0 {
				root = root[:idx]
			}
			for _, owned := range featureOwnedPaths {
				if root == owned {
					return fmt.Errorf("mapping rule %q targets %q, which the sync engine manages itself", rule.LocalField, owned)
				}
			}
		}
	}
	return nil
}
