package elastic

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

const maxErrorBody = 64 << 10

// errorBody is the engine's error envelope. "error" is an object on most APIs and a
// plain string on a few.
type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func transportErr(op string, err error) error {
	return &engine.Error{Op: op, Reason: err.Error(), Err: domain.ErrEngineUnavailable}
}

// responseErr drains and classifies an error response.
func responseErr(op string, res *esapi.Response) error {
	e := &engine.Error{Op: op, Status: res.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil && len(body.Error) > 0 {
		var cause errorCause
		if json.Unmarshal(body.Error, &cause) == nil {
			e.Type, e.Reason = cause.Type, cause.Reason
		} else {
			var s string
			if json.Unmarshal(body.Error, &s) == nil {
				e.Reason = s
			}
		}
	}

	e.Err = classify(res.StatusCode, e.Type)
	return e
}

func classify(status int, errType string) error {
	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout:
		return domain.ErrEngineUnavailable
	case errType == engine.TypeIndexNotFound:
		// provisioning will recreate it on redelivery
		return domain.ErrEngineUnavailable
	default:
		return domain.ErrEngineRejected
	}
}

// errorType peeks at the error type without consuming the classification path.
func errorType(err error) string {
	if ee, ok := err.(*engine.Error); ok {
		return ee.Type
	}
	return ""
}
