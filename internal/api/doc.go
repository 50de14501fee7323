// Package api exposes the HTTP boundary of the multi-model chat service:
// chat orchestration, standalone code execution, health, conversation
// history and Prometheus metrics.
package api
