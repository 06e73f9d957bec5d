package llmagent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/models"
)

// Tool names the model can call.
const (
	ToolSearchMessages       = "search_messages"
	ToolGetRecentMessages    = "get_recent_messages"
	ToolSummarizeChat        = "summarize_chat"
	ToolExtractTasks         = "extract_tasks"
	ToolGetConversationStats = "get_conversation_stats"
)

// ToolDefinition is a tool's name and JSON-schema surface as presented to
// the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolMessage is the per-message shape search and recent-listing tools
// return.
type ToolMessage struct {
	MessageID uint      `json:"message_id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolSet carries the run context every tool needs: the archive service
// (over the database) and the owning user. A nil ToolSet answers every
// invocation with an empty value.
type ToolSet struct {
	svc    *archive.Service
	userID uint

	userPhone string
}

func NewToolSet(svc *archive.Service, userID uint) *ToolSet {
	return &ToolSet{svc: svc, userID: userID}
}

// Definitions lists the five fixed tools.
func (t *ToolSet) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolSearchMessages,
			Description: "Search the user's message history for messages containing a text query.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Text to search for"},
					"limit": map[string]interface{}{"type": "integer", "description": "Maximum results, default 10"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolGetRecentMessages,
			Description: "Get the most recent messages of the conversation, oldest first.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count": map[string]interface{}{"type": "integer", "description": "How many messages, default 20"},
				},
			},
		},
		{
			Name:        ToolSummarizeChat,
			Description: "Summarize the recent conversation: message count, date range and key topics.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"last_n_messages": map[string]interface{}{"type": "integer", "description": "Window size, default 50"},
				},
			},
		},
		{
			Name:        ToolExtractTasks,
			Description: "Extract action items and tasks mentioned in the recent conversation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"last_n_messages": map[string]interface{}{"type": "integer", "description": "Window size, default 100"},
				},
			},
		},
		{
			Name:        ToolGetConversationStats,
			Description: "Get statistics about the whole conversation history.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// Invoke dispatches one tool call. Unknown tools and missing context return
// empty values, never errors: the model always gets a well-formed result.
func (t *ToolSet) Invoke(ctx context.Context, name string, args map[string]interface{}) interface{} {
	if t == nil || t.svc == nil {
		return emptyResult(name)
	}

	switch name {
	case ToolSearchMessages:
		return t.searchMessages(ctx, stringArg(args, "query"), intArg(args, "limit", 10))
	case ToolGetRecentMessages:
		return t.recentMessages(ctx, intArg(args, "count", 20))
	case ToolSummarizeChat:
		return t.summarizeChat(ctx, intArg(args, "last_n_messages", 50))
	case ToolExtractTasks:
		return t.extractTasks(ctx, intArg(args, "last_n_messages", 100))
	case ToolGetConversationStats:
		return t.conversationStats(ctx)
	default:
		logrus.WithField("tool", name).Warn("[AGENT] Unknown tool requested")
		return map[string]interface{}{}
	}
}

func (t *ToolSet) searchMessages(ctx context.Context, query string, limit int) []ToolMessage {
	msgs, err := t.svc.SearchMessages(ctx, t.userID, query, limit)
	if err != nil {
		logrus.WithError(err).Error("[AGENT] search_messages failed")
		return []ToolMessage{}
	}
	return t.toToolMessages(ctx, msgs)
}

func (t *ToolSet) recentMessages(ctx context.Context, count int) []ToolMessage {
	msgs, err := t.svc.GetRecentMessages(ctx, t.userID, count)
	if err != nil {
		logrus.WithError(err).Error("[AGENT] get_recent_messages failed")
		return []ToolMessage{}
	}
	// Newest-first from the archive; the model wants chronological.
	out := t.toToolMessages(ctx, msgs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (t *ToolSet) summarizeChat(ctx context.Context, lastN int) map[string]interface{} {
	msgs, err := t.svc.GetRecentMessages(ctx, t.userID, lastN)
	if err != nil || len(msgs) == 0 {
		return map[string]interface{}{
			"summary":       "No messages in the conversation yet.",
			"message_count": 0,
			"date_range":    map[string]interface{}{"start": nil, "end": nil},
			"key_topics":    []string{},
		}
	}

	// msgs is newest first.
	start := msgs[len(msgs)-1].Timestamp
	end := msgs[0].Timestamp
	topics := keyTopics(msgs, 5)

	summary := fmt.Sprintf("Conversation of %d messages between %s and %s.",
		len(msgs), start.Format("2006-01-02"), end.Format("2006-01-02"))
	if len(topics) > 0 {
		summary += " Main topics: " + strings.Join(topics, ", ") + "."
	}

	return map[string]interface{}{
		"summary":       summary,
		"message_count": len(msgs),
		"date_range": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"key_topics": topics,
	}
}

// taskMarkers flag a sentence as an action item.
var taskMarkers = []string{
	"need to", "needs to", "have to", "has to", "must ",
	"remember to", "don't forget", "dont forget", "todo", "to-do",
	"should ", "task:", "remind me",
}

var urgentMarkers = []string{"urgent", "asap", "immediately", "important", "today"}

func (t *ToolSet) extractTasks(ctx context.Context, lastN int) []map[string]interface{} {
	msgs, err := t.svc.GetRecentMessages(ctx, t.userID, lastN)
	if err != nil {
		logrus.WithError(err).Error("[AGENT] extract_tasks failed")
		return []map[string]interface{}{}
	}

	tasks := []map[string]interface{}{}
	// Oldest first so tasks come out in mention order.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Content == nil {
			continue
		}
		text := *m.Content
		lower := strings.ToLower(text)

		matched := false
		for _, marker := range taskMarkers {
			if strings.Contains(lower, marker) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		priority := "normal"
		for _, marker := range urgentMarkers {
			if strings.Contains(lower, marker) {
				priority = "high"
				break
			}
		}

		tasks = append(tasks, map[string]interface{}{
			"task":         strings.TrimSpace(text),
			"mentioned_at": m.Timestamp.Format(time.RFC3339),
			"priority":     priority,
			"completed":    false,
		})
	}
	return tasks
}

func (t *ToolSet) conversationStats(ctx context.Context) map[string]interface{} {
	stats, err := t.svc.GetConversationStats(ctx, t.userID)
	if err != nil {
		logrus.WithError(err).Error("[AGENT] get_conversation_stats failed")
		return emptyStats()
	}

	dateRange := map[string]interface{}{"start": nil, "end": nil}
	if stats.FirstDate != nil {
		dateRange["start"] = stats.FirstDate.Format(time.RFC3339)
	}
	if stats.LastDate != nil {
		dateRange["end"] = stats.LastDate.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"total_messages":           stats.Total,
		"user_messages":            stats.Sent,
		"assistant_messages":       stats.Received,
		"date_range":               dateRange,
		"average_messages_per_day": stats.AvgPerDay,
	}
}

func (t *ToolSet) toToolMessages(ctx context.Context, msgs []models.Message) []ToolMessage {
	phone := t.ownerPhone(ctx)
	out := make([]ToolMessage, 0, len(msgs))
	for _, m := range msgs {
		sender := "assistant"
		if m.Direction(phone) == models.DirectionIncoming {
			sender = "user"
		}
		content := ""
		if m.Content != nil {
			content = *m.Content
		} else if m.Caption != nil {
			content = *m.Caption
		}
		out = append(out, ToolMessage{
			MessageID: m.ID,
			Content:   content,
			Sender:    sender,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func (t *ToolSet) ownerPhone(ctx context.Context) string {
	if t.userPhone != "" {
		return t.userPhone
	}
	var user models.User
	if err := t.svc.DB().WithContext(ctx).First(&user, t.userID).Error; err != nil {
		return ""
	}
	t.userPhone = user.PhoneNumber
	return t.userPhone
}

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "being": true, "could": true,
	"every": true, "first": true, "going": true, "gonna": true, "great": true,
	"hello": true, "other": true, "please": true, "really": true, "right": true,
	"thank": true, "thanks": true, "there": true, "these": true, "thing": true,
	"think": true, "those": true, "today": true, "would": true, "where": true,
	"which": true, "while": true, "should": true, "still": true,
}

// keyTopics picks the most frequent non-trivial words across the window.
func keyTopics(msgs []models.Message, max int) []string {
	freq := map[string]int{}
	for _, m := range msgs {
		if m.Content == nil {
			continue
		}
		for _, word := range strings.Fields(strings.ToLower(*m.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if len(word) < 5 || stopWords[word] {
				continue
			}
			freq[word]++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		if c > 1 {
			counts = append(counts, wordCount{w, c})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	topics := []string{}
	for i := 0; i < len(counts) && i < max; i++ {
		topics = append(topics, counts[i].word)
	}
	return topics
}

func emptyResult(name string) interface{} {
	switch name {
	case ToolSearchMessages, ToolGetRecentMessages:
		return []ToolMessage{}
	case ToolExtractTasks:
		return []map[string]interface{}{}
	case ToolGetConversationStats:
		return emptyStats()
	default:
		return map[string]interface{}{}
	}
}

func emptyStats() map[string]interface{} {
	return map[string]interface{}{
		"total_messages":           0,
		"user_messages":            0,
		"assistant_messages":       0,
		"date_range":               map[string]interface{}{"start": nil, "end": nil},
		"average_messages_per_day": 0.0,
	}
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
