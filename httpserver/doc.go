/*
Package httpserver runs the HTTP surface of the provisioning backend.

A Server mounts the route handlers of the api subpackages behind request
logging, and adds the operational endpoints:

  - GET /livez - always 200 while the process serves
  - GET /readyz - 200, or 503 while draining
  - GET /drain - mark the server not ready ahead of a shutdown
  - GET /undrain - mark it ready again
  - /debug/* - pprof, when enabled

Prometheus metrics are served by a separate server on the metrics address.

Shutdown waits up to GracefulShutdownDuration for in-flight requests. Buy
and delete requests may be waiting on a provider webhook, which is bounded
by the webhook timeout, so the shutdown grace period should exceed it.
*/
package httpserver
