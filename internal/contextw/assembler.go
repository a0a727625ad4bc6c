// Package contextw implements C4, the ordered-message context assembler,
// adapted from the teacher repo's cmd/gateway/internal/openai/translator.go
// message-list construction and teradata-labs-loom's token_counter.go
// tiktoken-with-fallback pattern for budget accounting.
package contextw

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/dorianinnovations/Server/internal/models"
)

// Role mirrors the wire roles a completion message may carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the ordered list sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const identityPreamble = "You are Dorian, a conversational companion. " +
	"Speak in your own voice; never name, describe, or speculate about the " +
	"underlying model or provider powering you."

const markerInstruction = "When you notice a shift in the user's emotional state, append a line of the exact form " +
	"EMOTION_LOG: {\"emotion\":\"<label>\",\"intensity\":<1-10>,\"context\":\"<string>\"}. " +
	"When the user describes something actionable they want done later, append a line of the exact form " +
	"TASK_INFERENCE: {\"taskType\":\"<name>\",\"parameters\":{...}}. " +
	"These lines are read by the system and are never shown to the user; never mention them."

// Input bundles everything the assembler needs for one completion.
type Input struct {
	Profile             map[string]string
	RecentMemory        []models.MemoryMessage // most-recent-first, as read from the store
	RecentEmotions      []models.EmotionEntry   // most-recent-first
	Prompt              string
	IntelligenceSummary string // pre-compressed C5 output, empty when unavailable
	HistoryLimit        int    // default 6 when zero
}

// Assemble builds the ordered [system, ...history, user] message list.
func Assemble(in Input) []Message {
	limit := in.HistoryLimit
	if limit <= 0 {
		limit = 6
	}

	history := chronological(in.RecentMemory, limit)

	var sb strings.Builder
	sb.WriteString(identityPreamble)

	if len(in.Profile) > 0 {
		sb.WriteString("\n\nProfile:\n")
		writeProfile(&sb, in.Profile)
	}

	if in.IntelligenceSummary != "" {
		sb.WriteString("\n\nINTEL{")
		sb.WriteString(in.IntelligenceSummary)
		sb.WriteString("}")
	}

	if len(history) > 0 {
		sb.WriteString("\n\nThis conversation has prior turns; treat them as continuing context.")
	}

	if top := topEmotions(in.RecentEmotions, 3); top != "" {
		sb.WriteString("\n\nRecent emotional context: ")
		sb.WriteString(top)
	}

	sb.WriteString("\n\n")
	sb.WriteString(markerInstruction)

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: sb.String()})
	for _, m := range history {
		role := Role(m.Role)
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: in.Prompt})
	return messages
}

// chronological takes the most-recent-first store read, keeps at most limit
// entries, and reverses them to oldest-first for prompt assembly.
func chronological(memory []models.MemoryMessage, limit int) []models.MemoryMessage {
	if len(memory) > limit {
		memory = memory[:limit]
	}
	out := make([]models.MemoryMessage, len(memory))
	for i, m := range memory {
		out[len(memory)-1-i] = m
	}
	return out
}

func writeProfile(sb *strings.Builder, profile map[string]string) {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("- ")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(profile[k])
		sb.WriteString("\n")
	}
}

func topEmotions(entries []models.EmotionEntry, n int) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Emotion)
	}
	return strings.Join(parts, ", ")
}

// Counter estimates token counts for budget accounting during assembly,
// falling back to the coarse ceil(len/4) rule when the tiktoken encoding
// cannot be loaded.
type Counter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{encoder: nil}
	}
	return &Counter{encoder: enc}
}

func (c *Counter) Count(text string) int {
	if c == nil || c.encoder == nil {
		return (len(text) + 3) / 4
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoder.Encode(text, nil, nil))
}

// CountMessages sums the estimated token cost of every message.
func (c *Counter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content)
	}
	return total
}
