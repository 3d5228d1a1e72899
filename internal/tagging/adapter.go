// Package tagging orchestrates the LLM collaborator that derives memory
// texts, categories/keywords, and graph structure, degrading to
// deterministic local fallbacks when the collaborator fails.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recallstack/recall/internal/memory"
)

// LLM is the chat-completion collaborator.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Adapter implements memory.Tagger over an LLM, with local fallbacks. A nil
// LLM is valid: every call takes the fallback path.
type Adapter struct {
	llm    LLM
	logger *slog.Logger
}

// Compile-time interface guard.
var _ memory.Tagger = (*Adapter)(nil)

// NewAdapter creates an Adapter. llm may be nil for fallback-only
// operation.
func NewAdapter(llm LLM, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{llm: llm, logger: logger}
}

const inferPrompt = `Extract the facts worth remembering from the conversation below.
Return one fact per line, plainly stated. Return NONE if nothing is worth remembering.
%s
Conversation:
%s

Facts:`

// InferMemories derives memory texts from a conversation. Collaborator
// failure or empty output falls back to the verbatim concatenation of the
// message contents; the error is logged, never returned.
func (a *Adapter) InferMemories(ctx context.Context, msgs []memory.Message, instructions string) ([]string, error) {
	verbatim := concatenate(msgs)
	if a.llm == nil {
		return []string{verbatim}, nil
	}

	extra := ""
	if instructions != "" {
		extra = "Additional instructions: " + instructions + "\n"
	}

	raw, err := a.llm.Complete(ctx, fmt.Sprintf(inferPrompt, extra, transcript(msgs)))
	if err != nil {
		a.logger.Warn("memory inference failed, falling back to verbatim", "error", err)
		return []string{verbatim}, nil
	}

	facts := parseLines(raw)
	if len(facts) == 0 {
		return []string{verbatim}, nil
	}
	return facts, nil
}

const tagPrompt = `For the text below, produce JSON with two string arrays:
"categories" (broad topics%s) and "keywords" (specific terms from the text).
Respond with JSON only.

Text: %s`

// ExtractTags returns categories and keywords for a text. On collaborator
// failure it falls back to the frequency-based keyword extractor and no
// categories.
func (a *Adapter) ExtractTags(ctx context.Context, text string, customCategories []string) ([]string, []string) {
	if a.llm == nil {
		return nil, FrequencyKeywords(text, maxFallbackKeywords)
	}

	hint := ""
	if len(customCategories) > 0 {
		hint = ", preferring: " + strings.Join(customCategories, ", ")
	}

	raw, err := a.llm.Complete(ctx, fmt.Sprintf(tagPrompt, hint, text))
	if err != nil {
		a.logger.Warn("tag extraction failed, using frequency fallback", "error", err)
		return nil, FrequencyKeywords(text, maxFallbackKeywords)
	}

	var parsed struct {
		Categories []string `json:"categories"`
		Keywords   []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		a.logger.Warn("tag extraction returned non-JSON, using frequency fallback", "error", err)
		return nil, FrequencyKeywords(text, maxFallbackKeywords)
	}
	return parsed.Categories, parsed.Keywords
}

const graphPrompt = `Extract a knowledge graph from the text below as JSON:
{"entities": [{"name": ..., "type": ...}], "relations": [{"source": ..., "relation": ..., "target": ...}]}
Respond with JSON only.

Text: %s`

// ExtractGraph returns opaque entity/relation JSON. Best effort: any
// failure yields nil, nil.
func (a *Adapter) ExtractGraph(ctx context.Context, text string) (json.RawMessage, json.RawMessage) {
	if a.llm == nil {
		return nil, nil
	}

	raw, err := a.llm.Complete(ctx, fmt.Sprintf(graphPrompt, text))
	if err != nil {
		a.logger.Warn("graph extraction failed", "error", err)
		return nil, nil
	}

	var parsed struct {
		Entities  json.RawMessage `json:"entities"`
		Relations json.RawMessage `json:"relations"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		a.logger.Warn("graph extraction returned non-JSON", "error", err)
		return nil, nil
	}
	return parsed.Entities, parsed.Relations
}

// parseLines splits an LLM fact listing into trimmed, non-empty lines,
// dropping the NONE sentinel and list markers.
func parseLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	return strings.TrimSpace(raw)
}

func transcript(msgs []memory.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func concatenate(msgs []memory.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if c := strings.TrimSpace(msg.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}
