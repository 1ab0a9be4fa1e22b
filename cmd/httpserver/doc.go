// Command httpserver serves the app instance provisioning API.
//
// It mounts the user-facing instance routes and the provider-facing
// registration routes on --listen-addr, and Prometheus metrics on
// --metrics-addr. Instances are kept in the store named by --store.
//
// Every flag except the logging ones can also come from a YAML file given
// with --config, for example:
//
//	listen-addr: 0.0.0.0:8080
//	registration-base-url: https://apps.example.org
//	store: postgres://provisioning@db/provisioning?sslmode=disable
//	webhook-timeout: 30s
//
// Flags given on the command line take precedence over the file.
//
// Example usage:
//
//	httpserver --store sqlite3:///var/lib/provisioning/db.sqlite \
//	  --registration-base-url https://apps.example.org
package main
