package expressions

import (
	"encoding/json"
	"time"
)

// Context holds all data available to JMESPath expressions during field mapping
type Context struct {
	// Remote contains the raw remote record payload
	Remote interface{} `json:"remote,omitempty"`

	// Local contains the local entity as a generic document
	Local interface{} `json:"local,omitempty"`

	// Server contains per-server settings exposed to mapping rules
	Server map[string]interface{} `json:"server,omitempty"`

	// Meta contains sync run metadata
	Meta *ContextMeta `json:"meta,omitempty"`
}

// ContextMeta contains sync run metadata
type ContextMeta struct {
	// Identity is the composite identity being synced
	Identity string `json:"identity,omitempty"`

	// Resource is the remote resource kind (products, orders, ...)
	Resource string `json:"resource,omitempty"`

	// Direction is "pull" or "push"
	Direction string `json:"direction,omitempty"`

	// RunID identifies the sync run
	RunID string `json:"run_id,omitempty"`

	// Timestamp is the current sync timestamp
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewContext creates a new empty context
func NewContext() *Context {
	return &Context{
		Server: make(map[string]interface{}),
		Meta:   &ContextMeta{},
	}
}

// WithRemote sets the remote record payload
func (c *Context) WithRemote(remote interface{}) *Context {
	c.Remote = remote
	return c
}

// WithLocal sets the local document
func (c *Context) WithLocal(local interface{}) *Context {
	c.Local = local
	return c
}

// WithServer sets the server settings map
func (c *Context) WithServer(server map[string]interface{}) *Context {
	c.Server = server
	return c
}

// ToMap converts the context to a plain map for expression evaluation
func (c *Context) ToMap() (map[string]interface{}, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}

	return result, nil
}
