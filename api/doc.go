// Package api defines the request and response types of the ScriptFlow HTTP
// API.
//
// # API Overview
//
// ScriptFlow provides a RESTful API for:
//   - Script library management with version history
//   - Asynchronous script execution with live output streaming
//   - Execution history with owner/admin access rules
//   - Sealed credential management
//   - Health monitoring and metrics
//
// # Authentication
//
// API endpoints under /api/v1 require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// The token carries the caller identity and role; the admin role runs
// scripts with the security deny-list disabled.
package api
