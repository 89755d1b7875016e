package requester

import (
	"net/http"
)

// Response represents an HTTP response whose body has been fully read
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports whether the response carries a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
