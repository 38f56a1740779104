package echo

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/echo.html
var templateFS embed.FS

var echoTemplate = template.Must(template.ParseFS(templateFS, "templates/echo.html"))

// RenderHTML renders the Snapshot as a standalone page. Terse output shows
// only the request line. Every request derived value is escaped.
func RenderHTML(s Snapshot, terse bool) ([]byte, error) {
	var buf bytes.Buffer
	err := echoTemplate.Execute(&buf, struct {
		Request Snapshot
		Terse   bool
	}{s, terse})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render picks the renderer for the negotiated media type.
func Render(mime string, s Snapshot, terse bool) ([]byte, error) {
	if mime == MIMEJSON {
		return RenderJSON(s, terse)
	}
	return RenderHTML(s, terse)
}
