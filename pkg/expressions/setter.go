package expressions

import (
	"fmt"
	"strconv"
	"strings"
)

// SetPath writes value into doc at a dotted path like "dimensions.length" or
// "meta_data[2].value". JMESPath can only read, so the push direction of a
// mapping rule uses this to build the outbound payload. Intermediate maps and
// slices are created as needed; slices grow to fit an index.
func SetPath(doc map[string]interface{}, path string, value interface{}) error {
	segments, err := parsePath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}

	var current interface{} = doc
	for i, seg := range segments {
		last := i == len(segments)-1

		m, ok := current.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path %q: segment %q is not an object", path, seg.key)
		}

		if seg.index < 0 {
			if last {
				m[seg.key] = value
				return nil
			}
			next, exists := m[seg.key]
			if !exists || next == nil {
				child := make(map[string]interface{})
				m[seg.key] = child
				current = child
				continue
			}
			current = next
			continue
		}

		// Indexed segment, e.g. meta_data[2]
		slice, _ := m[seg.key].([]interface{})
		for len(slice) <= seg.index {
			slice = append(slice, nil)
		}
		m[seg.key] = slice

		if last {
			slice[seg.index] = value
			return nil
		}

		child, ok := slice[seg.index].(map[string]interface{})
		if !ok || child == nil {
			child = make(map[string]interface{})
			slice[seg.index] = child
		}
		current = child
	}

	return nil
}

type pathSegment struct {
	key   string
	index int // -1 when the segment has no [n] suffix
}

func parsePath(path string) ([]pathSegment, error) {
	parts := strings.Split(path, ".")
	segments := make([]pathSegment, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", path)
		}

		seg := pathSegment{key: part, index: -1}
		if open := strings.Index(part, "["); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("invalid path %q: unterminated index in %q", path, part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid path %q: bad index in %q", path, part)
			}
			seg.key = part[:open]
			seg.index = idx
			if seg.key == "" {
				return nil, fmt.Errorf("invalid path %q: index without key in %q", path, part)
			}
		}
		segments = append(segments, seg)
	}

	return segments, nil
}
