/*
Package api holds what the HTTP surface of the provisioning backend shares:
server configuration, wire types and the mapping of domain errors to HTTP
statuses.

The routes themselves live in subpackages:

  - instances: user-facing routes to buy, inspect, stop, restart and delete
    app instances. Callers are identified by the X-Account-Id header set by
    the authenticating gateway.
  - registration: provider-facing routes on the instance registration URI,
    authenticated with the instance client credentials.
  - clients: a Go client for the registration routes, as used by providers.

Mutating instance routes use optimistic concurrency. GET answers with an
ETag; DELETE and status changes require If-Match (428 when absent, 412 when
no listed version is current).
*/
package api
