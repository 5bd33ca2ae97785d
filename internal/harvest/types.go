package harvest

import "net/http"

// Phase is the lifecycle state of one processing task.
type Phase string

// Task phases reported through Reporter.FileStatus.
const (
	PhaseQueued       Phase = "queued"
	PhaseFetching     Phase = "fetching"
	PhaseTransforming Phase = "transforming"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether no further transitions follow.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Response is the result of a single fetch.
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports whether the response carries a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusText returns Status, falling back to the canonical text for the code.
func (r Response) StatusText() string {
	if r.Status != "" {
		return r.Status
	}
	return http.StatusText(r.StatusCode)
}

// FormatOptions controls source reformatting.
type FormatOptions struct {
	Enabled    bool `json:"enabled"`
	IndentSize int  `json:"indent_size"`
	UseTabs    bool `json:"use_tabs"`
}

// DefaultFormatOptions returns the out-of-the-box formatting settings.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{Enabled: false, IndentSize: 2, UseTabs: false}
}

// Indent returns the indentation unit for one nesting level.
func (o FormatOptions) Indent() string {
	if o.UseTabs {
		return "\t"
	}
	size := o.IndentSize
	if size <= 0 {
		size = 2
	}
	b := make([]byte, size)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
