// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing transcripts and tool calls, plus a
// go-vcr recorder for replaying provider HTTP traffic. Not intended for
// production usage.
package testutil
