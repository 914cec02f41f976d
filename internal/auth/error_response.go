package auth

// identityPlatformErrorResponse is the error envelope returned by the
// Identity Platform sign-in and token endpoints.
type identityPlatformErrorResponse struct {
	Error identityPlatformError `json:"error"`
}

type identityPlatformError struct {
	Code    int                           `json:"code"`
	Errors  []identityPlatformErrorDetail `json:"errors,omitempty"`
	Message string                        `json:"message"`
	Status  string                        `json:"status,omitempty"`
}

type identityPlatformErrorDetail struct {
	Domain  string `json:"domain"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// detail prefers the top level message, then the first detailed reason.
func (r identityPlatformErrorResponse) detail() string {
	if r.Error.Message != "" {
		return r.Error.Message
	}
	for _, e := range r.Error.Errors {
		if e.Message != "" {
			return e.Message
		}
		if e.Reason != "" {
			return e.Reason
		}
	}
	return r.Error.Status
}
