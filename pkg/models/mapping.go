package models

// MappingDirection controls which way a field mapping rule applies
type MappingDirection string

const (
	MappingPull MappingDirection = "pull"
	MappingPush MappingDirection = "push"
	MappingBoth MappingDirection = "both"
)

// FieldMappingRule maps one local field to one remote field. RemotePath is a
// JMESPath expression when pulling and a dotted setter path when pushing, so
// rules that apply both ways must keep it to plain key paths.
type FieldMappingRule struct {
	LocalField string           `json:"local_field"`
	RemotePath string           `json:"remote_path"`
	Direction  MappingDirection `json:"direction,omitempty"`

	// Template, when set, renders the value from the whole mapping context
	// instead of reading a single path. Pull only.
	Template string `json:"template,omitempty"`

	// Cast coerces the value: "string", "int", "float", "bool" or empty
	Cast string `json:"cast,omitempty"`

	// Default fills in when the source side has no value
	Default any `json:"default,omitempty"`
}

// AppliesTo reports whether the rule is active for the given direction
func (r FieldMappingRule) AppliesTo(direction MappingDirection) bool {
	switch r.Direction {
	case "", MappingBoth:
		return true
	default:
		return r.Direction == direction
	}
}
