package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON is returned when a database column cannot be decoded
	// into one of the JSON-backed types below.
	ErrInvalidJSON = errors.New("invalid JSON value")
)

// JSONMap represents a map that can be stored as JSON in a database column.
// It carries opaque nested structures such as a server's MCP transport
// descriptor.
type JSONMap map[string]interface{}

// Scan implements the sql.Scanner interface for database deserialization
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(JSONMap)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into JSONMap", ErrInvalidJSON, value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = make(JSONMap)
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Value implements the driver.Valuer interface for database serialization
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "null", nil
	}
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshaling JSONMap: %w", err)
	}
	return string(raw), nil
}

// String returns the value stored under key when it is a string, or "".
func (m JSONMap) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// StringArray represents a slice that can be stored as JSON in a database column
type StringArray []string

// Scan implements the sql.Scanner interface for database deserialization
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = make(StringArray, 0)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into StringArray", ErrInvalidJSON, value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*a = make(StringArray, 0)
		return nil
	}
	return json.Unmarshal(raw, a)
}

// Value implements the driver.Valuer interface for database serialization
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("error marshaling StringArray: %w", err)
	}
	return string(raw), nil
}

// IssueList stores the findings of a scan as a JSON column.
type IssueList []ScanIssue

// Scan implements the sql.Scanner interface for database deserialization
func (l *IssueList) Scan(value interface{}) error {
	if value == nil {
		*l = make(IssueList, 0)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into IssueList", ErrInvalidJSON, value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*l = make(IssueList, 0)
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Value implements the driver.Valuer interface for database serialization
func (l IssueList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("error marshaling IssueList: %w", err)
	}
	return string(raw), nil
}

// ToolList stores the tools a scan discovered on a server as a JSON column.
type ToolList []DiscoveredTool

// Scan implements the sql.Scanner interface for database deserialization
func (l *ToolList) Scan(value interface{}) error {
	if value == nil {
		*l = make(ToolList, 0)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into ToolList", ErrInvalidJSON, value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*l = make(ToolList, 0)
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Value implements the driver.Valuer interface for database serialization
func (l ToolList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("error marshaling ToolList: %w", err)
	}
	return string(raw), nil
}
