package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResponse parses the response body based on content type
func ParseResponse(resp *Response) error {
	if len(resp.Body) == 0 {
		return nil
	}

	contentType := strings.ToLower(resp.ContentType)

	switch {
	case strings.Contains(contentType, "json"):
		return parseJSON(resp)
	case strings.Contains(contentType, "text/"):
		// Text responses - store as string
		resp.BodyJSON = string(resp.Body)
		return nil
	default:
		// Some misconfigured stores return JSON with a bad content type,
		// so try anyway before giving up.
		if err := parseJSON(resp); err == nil {
			return nil
		}
		return fmt.Errorf("unsupported content type: %s", resp.ContentType)
	}
}

// parseJSON parses JSON response body
func parseJSON(resp *Response) error {
	var result any
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	resp.BodyJSON = result
	return nil
}
