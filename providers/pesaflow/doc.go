// Package pesaflow is the payment-gateway client. Every operation returns a
// tagged result instead of an error: payment failures are rendered inline by
// callers, so nothing is allowed to propagate past this boundary.
package pesaflow
