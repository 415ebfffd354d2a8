package discovery

import "fmt"

// ScanError reports a failed scan cycle. It is delivered to the error
// handlers; it never stops the other discovery component.
type ScanError struct {
	Transport string
	Err       error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("discovery: %s scan failed: %v", e.Transport, e.Err)
}

func (e *ScanError) Cause() error {
	return e.Err
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
