// ABOUTME: Error values returned by the assistants client
// ABOUTME: Separates API rejections and undecodable payloads from transport failures

package assistant

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMalformedPayload is wrapped by errors for responses that could not be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("assistants api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("assistants api error (%d): %s", e.StatusCode, e.Message)
}

// wrapError normalizes errors coming out of the go-openai client.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message})
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return fmt.Errorf("%s: %w", op, &APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg})
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedPayload, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
