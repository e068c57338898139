package storyblok

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrorKind tells transport failures apart from undecodable bodies.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindDecode
)

// invalidJSONMessage is reported for 2xx responses whose body is not JSON.
const invalidJSONMessage = "Invalid JSON response from Storyblok"

// Response is a successful content API call. Payload is the body decoded
// as-is; Raw keeps the bytes so the content tree can be walked in
// document order.
type Response struct {
	Status  int
	Payload any
	Raw     []byte
}

// HasStory reports whether the envelope carries a "story" key.
func (r *Response) HasStory() bool {
	if r == nil {
		return false
	}
	return gjson.GetBytes(r.Raw, "story").Exists()
}

// APIError is returned for every expected failure of a content API call.
// Status is nil when no HTTP response was produced.
type APIError struct {
	Kind    ErrorKind
	Status  *int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Status == nil {
		return fmt.Sprintf("storyblok: %s", e.Message)
	}
	return fmt.Sprintf("storyblok: status %d: %s", *e.Status, e.Message)
}

// Result renders the error as the mapping handed to the model.
func (e *APIError) Result() map[string]any {
	res := map[string]any{
		"error":   true,
		"status":  nil,
		"message": e.Message,
	}
	if e.Status != nil {
		res["status"] = *e.Status
	}
	if e.Kind == KindDecode {
		res["body"] = e.Body
	}
	return res
}

func transportError(status *int, msg string) *APIError {
	return &APIError{Kind: KindTransport, Status: status, Message: msg}
}

func decodeError(status int, body []byte) *APIError {
	return &APIError{
		Kind:    KindDecode,
		Status:  &status,
		Message: invalidJSONMessage,
		Body:    string(body),
	}
}
