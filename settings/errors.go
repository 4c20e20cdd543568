package settings

import "fmt"

// ConfigValidationError reports a setting value that was rejected. The
// stored settings are left as they were.
type ConfigValidationError struct {
	Key    string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("settings: %s=%v: %s", e.Key, e.Value, e.Reason)
}

func (e *ConfigValidationError) Kind() string { return "invalid configuration" }
