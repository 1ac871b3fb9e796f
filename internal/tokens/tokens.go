// Package tokens estimates transcript sizes with tiktoken and trims
// conversation history to a token budget before it is sent to a model.
package tokens

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/hupe1980/agentdesk/core"
)

// Per-message overhead of the chat format (role, separators).
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPerCall    = 3
)

// Counter counts tokens of transcripts. It is safe for concurrent use.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a counter using the encoding of model. Unknown models
// use o200k_base; if no codec can be loaded the counter falls back to a
// four-characters-per-token estimate.
func NewCounter(model string) *Counter {
	codec, err := tokenizer.Get(encodingFor(model))
	if err != nil {
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// encodingFor maps model names to encodings.
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// Text counts the tokens of s.
func (c *Counter) Text(s string) int {
	if s == "" {
		return 0
	}
	if c.codec == nil {
		return (len(s) + 3) / 4
	}
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		return (len(s) + 3) / 4
	}
	return len(ids)
}

// Message counts one message including chat format overhead.
func (c *Counter) Message(m core.Message) int {
	n := tokensPerMessage + tokensPerRole + c.Text(m.Content)
	for _, tc := range m.ToolCalls {
		n += c.Text(tc.Name) + c.Text(string(tc.Arguments)) + tokensPerCall
	}
	return n
}

// Transcript counts every message of t.
func (c *Counter) Transcript(t core.Transcript) int {
	total := 0
	for _, m := range t {
		total += c.Message(m)
	}
	return total
}

// Trim returns the longest suffix of t that fits into budget tokens. The
// latest user message and everything after it are always kept, an assistant
// message requesting tools is kept or dropped together with its results, and
// the result never starts with an orphaned tool result. A budget <= 0
// disables trimming.
func (c *Counter) Trim(t core.Transcript, budget int) core.Transcript {
	if budget <= 0 || len(t) == 0 {
		return t.Clone()
	}

	start := len(t) - 1
	for start > 0 && t[start].Role != core.RoleUser {
		start--
	}
	if t[start].Role != core.RoleUser {
		// No user message: keep the trailing tool exchange whole.
		start = groupStart(t, len(t)-1)
	}

	used := c.Transcript(t[start:])
	for start > 0 {
		from := groupStart(t, start-1)
		n := c.Transcript(t[from:start])
		if used+n > budget {
			break
		}
		used += n
		start = from
	}
	for start < len(t)-1 && t[start].Role == core.RoleTool {
		start++
	}
	return t[start:].Clone()
}

// groupStart returns the index of the message that opens the exchange ending
// at i: the assistant message whose tool calls produced the results at i, or
// i itself.
func groupStart(t core.Transcript, i int) int {
	j := i
	for j > 0 && t[j].Role == core.RoleTool {
		j--
	}
	if j < i && t[j].Role == core.RoleAssistant && t[j].HasToolCalls() {
		return j
	}
	if t[i].Role == core.RoleTool {
		return j + 1
	}
	return i
}
