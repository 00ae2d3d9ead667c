package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/studiowebux/perfwatch/internal/types"
	"github.com/tidwall/gjson"
)

// APIError is a failed API call, either at the HTTP or at the envelope level
type APIError struct {
	StatusCode int
	Code       int64
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d, code %d", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("api error: status %d, code %d: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// unwrapEnvelope checks the {code, msg, data} envelope and returns data.
// Bodies without an envelope are returned as is.
func unwrapEnvelope(status int, raw []byte) ([]byte, error) {
	if status < 200 || status >= 300 {
		msg := gjson.GetBytes(raw, "msg").String()
		if msg == "" && !gjson.ValidBytes(raw) {
			msg = truncate(string(raw), 200)
		}
		return nil, &APIError{StatusCode: status, Code: gjson.GetBytes(raw, "code").Int(), Message: msg}
	}

	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON response: %s", truncate(string(raw), 200))
	}

	env := gjson.ParseBytes(raw)
	if !env.IsObject() || (!env.Get("data").Exists() && !env.Get("code").Exists()) {
		return raw, nil
	}
	if code := env.Get("code"); code.Exists() && code.Int() != 0 && code.Int() != http.StatusOK {
		return nil, &APIError{StatusCode: status, Code: code.Int(), Message: env.Get("msg").String()}
	}
	data := env.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, nil
	}
	return []byte(data.Raw), nil
}

func decodeData(endpoint string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}
	return nil
}

// parseErrorCounters reads {"target": {"errorNum": n, "<kind>": n, ...}}
// keeping targets and kinds in document order
func parseErrorCounters(data []byte) []types.ErrorCounter {
	var counters []types.ErrorCounter
	gjson.ParseBytes(data).ForEach(func(name, value gjson.Result) bool {
		c := types.ErrorCounter{Name: name.String()}
		value.ForEach(func(key, n gjson.Result) bool {
			if key.String() == "errorNum" {
				c.ErrorNum = n.Int()
				return true
			}
			c.Kinds = append(c.Kinds, types.ErrorKindCount{Name: key.String(), ErrorNum: n.Int()})
			return true
		})
		counters = append(counters, c)
		return true
	})
	return counters
}

// parseStatusCodes reads {"target": {"2xx": n, ...}} in document order
func parseStatusCodes(data []byte) ([]types.StatusCodeCounter, error) {
	var counters []types.StatusCodeCounter
	var decodeErr error
	gjson.ParseBytes(data).ForEach(func(name, value gjson.Result) bool {
		c := types.StatusCodeCounter{Name: name.String()}
		if err := json.Unmarshal([]byte(value.Raw), &c.StatusCodes); err != nil {
			decodeErr = fmt.Errorf("failed to decode status codes of %s: %w", name.String(), err)
			return false
		}
		counters = append(counters, c)
		return true
	})
	return counters, decodeErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
