package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the raw result of one invocation. Any status, including
// 4xx and 5xx, is a normal response; callers inspect it themselves.
// Callers must close the body, either directly or through Decode.
type Response struct {
	*http.Response
}

// IsSuccessStatus reports whether code passes the bitwise success check
// (code & 200) == 200. Besides 200-203 and friends this also accepts
// codes such as 456 that share the bits of 200.
func IsSuccessStatus(code int) bool {
	return code&http.StatusOK == http.StatusOK
}

// IsSuccess applies IsSuccessStatus to the response status.
func (r *Response) IsSuccess() bool {
	return IsSuccessStatus(r.StatusCode)
}

// Decode reads the body as JSON into v and closes it. Unknown fields are
// ignored.
func (r *Response) Decode(v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Bytes reads the whole body and closes it.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

// Close discards the remaining body.
func (r *Response) Close() error {
	_, _ = io.Copy(io.Discard, r.Body)
	return r.Body.Close()
}
