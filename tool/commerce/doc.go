// Package commerce provides the customer support tools: order lookup,
// listing and modification, delivery status, payment and refund lookups and
// conversation history search.
//
// Every tool decodes its normalized tool.Args into a dedicated argument
// struct and reports recoverable conditions as *tool.ToolError so the model
// sees a readable {"error": ...} payload. The MISSING sentinel injected by
// the orchestration layer is treated as an absent identifier.
package commerce
