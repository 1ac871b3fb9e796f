// Package runner executes one chat request end to end.
//
// A request passes through these stages:
//   - the conversation is created or loaded and the user message is stored
//   - the router classifies the utterance
//   - the selector picks the agent profile for the intent
//   - profiles with eager context get the order record spliced into their
//     instruction before the first model call
//   - the flow runs the bounded tool loop and streams the answer
//   - the answer is stored under the profile's name and a
//     TurnCompleted event is published
//
// Start performs the bootstrap synchronously so callers learn the
// conversation id before any output is streamed; Chat.Run does the rest.
package runner
