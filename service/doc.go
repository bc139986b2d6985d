// Package service contains the application layer between the HTTP API and
// the execution engine. It owns script management, asynchronous execution
// orchestration with live output streaming, execution history access rules,
// and sealed credential management.
package service
