// Package model is the completion service contract shared by the router and
// the flow. A Model emits partial text chunks followed by one final Response
// carrying any tool calls; Complete and Stream drain it for the two call
// shapes the service needs.
//
// The openai and anthropic subpackages adapt the vendor SDKs. MockModel
// replays scripted turns in tests and backs the "mock" provider.
package model
