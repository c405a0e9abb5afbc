// Package middleware provides HTTP middleware for the MCP market-data server.
// These middleware functions handle security headers, CORS, request size
// limits, and HTTP metrics collection.
package middleware
