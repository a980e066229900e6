package reminder

import (
	"bytes"
	"encoding/json"
	"errors"
)

// DecodeResponse parses a notifier's JSON response body, e.g.
// {"activationValue":"5分钟后再提醒"}. An empty body means the user gave no
// answer; anything else that is not a JSON object is a *MalformedResponseError.
func DecodeResponse(body []byte) (Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Response{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Response{}, &MalformedResponseError{Body: string(body), Err: err}
	}
	if raw == nil {
		return Response{}, &MalformedResponseError{Body: string(body), Err: errors.New("null body")}
	}
	var out Response
	v, ok := raw["activationValue"]
	if !ok || bytes.Equal(v, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(v, &out.ActivationValue); err != nil {
		return Response{}, &MalformedResponseError{Body: string(body), Err: err}
	}
	return out, nil
}
