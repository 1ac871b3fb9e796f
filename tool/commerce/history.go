package commerce

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/tool"
)

const (
	historyResultLimit = 5
	snippetRunes       = 200
)

type queryHistoryArgs struct {
	Query          string `json:"query,omitempty" description:"Text to look for in earlier messages of this conversation"`
	ConversationID string `json:"conversationId,omitempty" description:"Filled in automatically with the current conversation"`
}

// NewQueryHistory returns the queryHistory tool. It searches the current
// conversation case-insensitively and returns the most recent matches; an
// empty query returns the most recent messages.
func NewQueryHistory(history HistoryReader) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		QueryHistory,
		"Query conversation history",
		queryHistoryArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in queryHistoryArgs
			if err := decode(QueryHistory, args, &in); err != nil {
				return nil, err
			}
			convID := identifier(in.ConversationID)
			if convID == "" {
				return nil, missing(QueryHistory, "Conversation context is missing. Cannot search history.")
			}

			msgs, err := history.Messages(ctx, convID)
			if errors.Is(err, session.ErrConversationNotFound) {
				return nil, notFound(QueryHistory, "Conversation not found.")
			}
			if err != nil {
				return nil, lookupError(QueryHistory, err, "Conversation not found.", "Failed to query conversation history.")
			}

			needle := strings.ToLower(strings.TrimSpace(in.Query))
			results := []map[string]any{}
			for i := len(msgs) - 1; i >= 0 && len(results) < historyResultLimit; i-- {
				m := msgs[i]
				if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
					continue
				}
				results = append(results, map[string]any{
					"role":    string(m.Role),
					"content": snippet(m.Content),
				})
			}

			if len(results) == 0 {
				return map[string]any{"results": results, "message": "No matching messages found."}, nil
			}
			return map[string]any{"results": results}, nil
		},
		readOnly,
	)
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	return string([]rune(s)[:snippetRunes]) + "…"
}
