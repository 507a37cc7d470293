// Package metrics registers the Prometheus collectors for the bulk mailer.
package metrics
