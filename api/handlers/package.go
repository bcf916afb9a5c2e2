// Package handlers contains the HTTP handlers of the payout API. Errors are
// rendered through api/responses as RFC 7807 problem details.
package handlers
