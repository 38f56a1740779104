package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fnproject/httpecho/api/common"
	"github.com/fnproject/httpecho/api/wire"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

type echoResponse struct {
	Request map[string]json.RawMessage `json:"request"`
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testServer(opts ...Option) *Server {
	return New(context.Background(), opts...)
}

func createRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	req, err := http.NewRequest(method, "http://127.0.0.1:9080"+path, body)
	if err != nil {
		t.Fatalf("Test: Could not create %s request to %s: %v", method, path, err)
	}
	return req
}

func routerRequest(_ *testing.T, router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	rec.Body = new(bytes.Buffer)
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEcho(t *testing.T, rec *httptest.ResponseRecorder) echoResponse {
	var res echoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("Test: response is not JSON: %v: %s", err, rec.Body.String())
	}
	if res.Request == nil {
		t.Fatalf("Test: response has no request object: %s", rec.Body.String())
	}
	return res
}

func TestEchoAlwaysOK(t *testing.T) {
	srv := testServer()

	for i, test := range []struct {
		method string
		path   string
		accept string
		body   string
	}{
		{"GET", "/", "", ""},
		{"GET", "/v2/apps/nope", "application/json", ""},
		{"POST", "/deep/path/?q=1&q=2", "text/html", "payload"},
		{"PUT", "/x", "*/*", "{}"},
		{"DELETE", "/x/", "application/xml", ""},
		{"PATCH", "/%20space", "", "a"},
		{"OPTIONS", "/", "", ""},
		{"PROPFIND", "/dav", "", ""},
	} {
		var body io.Reader
		if test.body != "" {
			body = strings.NewReader(test.body)
		}
		req := createRequest(t, test.method, test.path, body)
		if test.accept != "" {
			req.Header.Set("Accept", test.accept)
		}
		rec := routerRequest(t, srv.Router, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Test %d: %s %s returned %d, expected 200", i, test.method, test.path, rec.Code)
		}
	}
}

func TestEchoJSON(t *testing.T) {
	srv := testServer()

	req := createRequest(t, "POST", "/foo?x=1", strings.NewReader("hello"))
	req.Header.Set("Accept", "application/json")
	rec := routerRequest(t, srv.Router, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Expected application/json, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `"body":"hello"`) {
		t.Fatalf("Expected body to round trip: %s", rec.Body.String())
	}

	res := decodeEcho(t, rec)
	for _, key := range []string{"method", "url", "headers", "body"} {
		if _, ok := res.Request[key]; !ok {
			t.Errorf("Verbose response is missing %q: %s", key, rec.Body.String())
		}
	}
	if string(res.Request["url"]) != `"/foo?x=1"` {
		t.Errorf("Unexpected url %s", res.Request["url"])
	}
}

func TestEchoVerboseExample(t *testing.T) {
	srv := testServer()

	req := createRequest(t, "GET", "/foo?x=1", nil)
	req.Header.Set("Accept", "application/json")
	rec := routerRequest(t, srv.Router, req)

	body := rec.Body.String()
	if !strings.HasPrefix(body, `{"request":{"method":"GET","url":"/foo?x=1","headers":[`) || !strings.HasSuffix(body, `],"body":""}}`) {
		t.Fatalf("Unexpected verbose body: %s", body)
	}
	var headers [][2]string
	if err := json.Unmarshal(decodeEcho(t, rec).Request["headers"], &headers); err != nil {
		t.Fatal(err)
	}
	expected := [][2]string{{"Host", "127.0.0.1:9080"}, {"Accept", "application/json"}}
	if diff := cmp.Diff(expected, headers); diff != "" {
		t.Fatalf("Headers mismatch (-expected +got):\n%s", diff)
	}
}

func TestEchoTerseExample(t *testing.T) {
	srv := testServer(WithTerse(true))

	req := createRequest(t, "GET", "/foo?x=1", nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Secret", "not shown")
	rec := routerRequest(t, srv.Router, req)

	if rec.Body.String() != `{"request":{"method":"GET","url":"/foo?x=1"}}` {
		t.Fatalf("Unexpected terse body: %s", rec.Body.String())
	}
}

func TestEchoDefaultsToHTML(t *testing.T) {
	srv := testServer()

	for _, accept := range []string{"", "text/plain", "nonsense", "text/html, application/json"} {
		req := createRequest(t, "GET", "/", nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		rec := routerRequest(t, srv.Router, req)

		if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
			t.Errorf("Accept %q: expected text/html, got %s", accept, ct)
		}
		if !strings.Contains(rec.Body.String(), "<p>None</p>") {
			t.Errorf("Accept %q: expected None placeholder for empty body", accept)
		}
	}
}

func TestEchoAnyTypeGetsJSON(t *testing.T) {
	srv := testServer()

	req := createRequest(t, "GET", "/", nil)
	req.Header.Set("Accept", "*/*")
	rec := routerRequest(t, srv.Router, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Accept */*: expected application/json, got %s", ct)
	}
	decodeEcho(t, rec)
}

func TestEchoHTMLTerse(t *testing.T) {
	srv := testServer(WithTerse(true))

	rec := routerRequest(t, srv.Router, createRequest(t, "DELETE", "/a?b=c", nil))
	page := rec.Body.String()
	if !strings.Contains(page, `<p class="request">DELETE /a?b=c</p>`) {
		t.Fatalf("Missing request line: %s", page)
	}
	if strings.Contains(page, "<table>") {
		t.Fatal("Terse page must not list headers")
	}
}

func TestAccessLogLine(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(common.NewFormatter("text"))
	defer logrus.SetOutput(io.Discard)

	srv := testServer()
	routerRequest(t, srv.Router, createRequest(t, "GET", "/foo?x=1", nil))

	var access string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "INFO: GET /foo?x=1 200 - - ") {
			access = line
		}
	}
	if access == "" {
		t.Fatalf("No access line logged: %s", buf.String())
	}
	if !strings.Contains(access, "ms request_id=") {
		t.Fatalf("Access line should carry elapsed ms and the request id: %s", access)
	}
}

func TestRequestIDFromHeader(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(common.NewFormatter("json"))
	defer func() {
		logrus.SetOutput(io.Discard)
		logrus.SetFormatter(common.NewFormatter("text"))
	}()

	srv := testServer()
	req := createRequest(t, "GET", "/", nil)
	req.Header.Set(DefaultRequestIDHeader, strings.Repeat("r", 40))
	routerRequest(t, srv.Router, req)

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Log line is not JSON: %q", line)
		}
		if msg, _ := entry["msg"].(string); strings.HasPrefix(msg, "GET / 200 - - ") {
			found = true
			if entry[common.RequestIDContextKey] != strings.Repeat("r", 32) {
				t.Fatalf("Expected truncated request id, got %v", entry[common.RequestIDContextKey])
			}
		}
	}
	if !found {
		t.Fatalf("No access line logged: %s", buf.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer()

	req := createRequest(t, "GET", "/", nil)
	req.Header.Set("Accept", "application/json")
	routerRequest(t, srv.Router, req)
	routerRequest(t, srv.Router, createRequest(t, "BREW", "/pot", nil))

	rec := routerRequest(t, srv.AdminRouter, createRequest(t, "GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected metrics to be served, got %d", rec.Code)
	}
	metrics := rec.Body.String()
	for _, want := range []string{
		`httpecho_requests_total{content_type="application/json",method="GET"} 1`,
		`httpecho_requests_total{content_type="text/html",method="OTHER"} 1`,
		`httpecho_request_body_bytes_count 2`,
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("Metrics missing %q", want)
		}
	}

	rec = routerRequest(t, srv.AdminRouter, createRequest(t, "GET", "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("Unexpected health answer %d: %s", rec.Code, rec.Body.String())
	}

	// the echo surface has no routes, /metrics there is just another echo
	rec = routerRequest(t, srv.Router, createRequest(t, "GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Expected /metrics on the echo surface to be echoed, got %s", ct)
	}
}

func startServing(t *testing.T, srv *Server) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Test: could not listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned an error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not stop")
		}
	})
	return ln.Addr().String()
}

func TestHeaderOrderOverTheWire(t *testing.T) {
	addr := startServing(t, testServer())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	io.WriteString(conn, "GET /foo?x=1 HTTP/1.1\r\n"+
		"X-B: 2\r\n"+
		"Host: echo.test\r\n"+
		"X-A: 1\r\n"+
		"Accept: application/json\r\n"+
		"X-B: 0\r\n"+
		"Connection: close\r\n"+
		"\r\n")

	res, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)

	var body struct {
		Request struct {
			Headers [][2]string `json:"headers"`
		} `json:"request"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("Response is not JSON: %v: %s", err, raw)
	}
	expected := [][2]string{
		{"X-B", "2"},
		{"Host", "echo.test"},
		{"X-A", "1"},
		{"Accept", "application/json"},
		{"X-B", "0"},
		{"Connection", "close"},
	}
	if diff := cmp.Diff(expected, body.Request.Headers); diff != "" {
		t.Fatalf("Header order mismatch (-expected +got):\n%s", diff)
	}
}

func TestHeaderOrderAfterLargeBody(t *testing.T) {
	addr := startServing(t, testServer())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	body := strings.Repeat("b", wire.MaxPending+1024)
	raw := "POST /big HTTP/1.1\r\n" +
		"X-Z: 1\r\n" +
		"Host: h\r\n" +
		"X-A: 2\r\n" +
		"Accept: application/json\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body +
		"GET /next HTTP/1.1\r\n" +
		"X-Second: yes\r\n" +
		"Host: h\r\n" +
		"Accept: application/json\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	go io.WriteString(conn, raw)

	br := bufio.NewReader(conn)
	for i, expected := range [][][2]string{
		{{"X-Z", "1"}, {"Host", "h"}, {"X-A", "2"}, {"Accept", "application/json"}, {"Content-Length", strconv.Itoa(len(body))}},
		{{"X-Second", "yes"}, {"Host", "h"}, {"Accept", "application/json"}, {"Connection", "close"}},
	} {
		res, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatalf("Response %d: %v", i, err)
		}
		var echoed struct {
			Request struct {
				Headers [][2]string `json:"headers"`
				Body    string      `json:"body"`
			} `json:"request"`
		}
		err = json.NewDecoder(res.Body).Decode(&echoed)
		res.Body.Close()
		if err != nil {
			t.Fatalf("Response %d is not JSON: %v", i, err)
		}
		if diff := cmp.Diff(expected, echoed.Request.Headers); diff != "" {
			t.Fatalf("Response %d header order mismatch (-expected +got):\n%s", i, diff)
		}
		if i == 0 && len(echoed.Request.Body) != len(body) {
			t.Fatalf("Expected a %d byte body, got %d", len(body), len(echoed.Request.Body))
		}
	}
}

func TestH2CPriorKnowledge(t *testing.T) {
	addr := startServing(t, testServer())

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}

	req, _ := http.NewRequest("POST", "http://"+addr+"/h2?y=2", strings.NewReader("over h2"))
	req.Header.Set("Accept", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("h2c request failed: %v", err)
	}
	defer res.Body.Close()

	if res.ProtoMajor != 2 {
		t.Fatalf("Expected HTTP/2, got %s", res.Proto)
	}
	raw, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(raw), `"url":"/h2?y=2"`) || !strings.Contains(string(raw), `"body":"over h2"`) {
		t.Fatalf("Unexpected h2c echo: %s", raw)
	}
}
