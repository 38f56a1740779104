package echo

import (
	jsoniter "github.com/json-iterator/go"
)

// same as encoding/json minus HTML escaping, the body is not meant for a browser
var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type terseSnapshot struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// RenderJSON renders {"request": ...}. Terse output carries only the method
// and url.
func RenderJSON(s Snapshot, terse bool) ([]byte, error) {
	var request interface{} = s
	if terse {
		request = terseSnapshot{Method: s.Method, URL: s.URL}
	} else if s.Headers == nil {
		s.Headers = []Header{}
		request = s
	}
	return jsonAPI.Marshal(struct {
		Request interface{} `json:"request"`
	}{request})
}
