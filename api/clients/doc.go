/*
Package clients provides a Go client for the provider-facing registration
routes.

A provider receives an instance id, client credentials and a registration
URI in the instantiation webhook. NewRegistrationClient turns that payload
into a client that can either acknowledge the instance, declaring its
services, scopes and destruction webhook, or report that instantiation
failed.

Error answers are mapped back to the interfaces error taxonomy, so callers
can test for interfaces.ErrNotFound when the instance is no longer pending.
*/
package clients
