// Package core provides the foundational domain types shared by the agentdesk
// packages. It defines the abstractions for:
//
//   - Messages and transcripts (the conversation threaded through one turn)
//   - Tool calls and tool results (model requested actions and their payloads)
//   - Intents (router classification output)
//   - Step budgets (bounded orchestration)
//   - Conversations and stored messages (persistence records)
//
// The package keeps implementation concerns (persistence, model providers,
// HTTP transport) out of scope so higher level packages can depend on it
// without pulling in infrastructure.
package core
