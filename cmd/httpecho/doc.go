/*
httpecho answers every request with a description of the request itself:
method, path and query, headers in the order they arrived, and the body.
Clients asking for application/json get JSON, everybody else an HTML page.

Environment Variables:

PORT
TCP port to listen on, all interfaces. Default: `9080`. Invalid values fall back to the default.

LOG_FORMAT
`json` for one JSON object per line, anything else for `[timestamp] LEVEL: message` lines.

LOG_LEVEL
Default: `debug`, which also logs every echoed request in full.

TERSE_RESPONSE
Set to `true` to only echo the method and url.

METRICS_PORT
Serve prometheus /metrics and /health on a separate port. Default: disabled.

H2C
Set to `false` to turn off HTTP/2 over cleartext. Default: enabled.

REQUEST_ID_HEADER
Header a request id is taken from for log lines. Default: `X-Request-Id`.

SHUTDOWN_TIMEOUT
How long to wait for in-flight requests on SIGINT/SIGTERM, a duration or seconds. Default: `10s`.
*/
package main
