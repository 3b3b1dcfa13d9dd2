package media

import (
	"fmt"
)

// TransferError reports a failed media download: a non-success HTTP status
// or a connection fault.
type TransferError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ToolError reports a transcoder subprocess failure and carries its
// captured diagnostic output.
type ToolError struct {
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ResizeError reports a failed image decode or encode.
type ResizeError struct {
	Err error
}

func (e *ResizeError) Error() string { return fmt.Sprintf("resize image: %v", e.Err) }

func (e *ResizeError) Unwrap() error { return e.Err }
