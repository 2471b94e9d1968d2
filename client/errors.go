package client

import "fmt"

// ConfigurationError reports a request that can never succeed as given,
// such as an unknown connector or a send without an authority. It is
// returned synchronously and never recorded in state.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
