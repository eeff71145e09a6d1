package chat

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType identifies the kind of a multimodal content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one piece of a multimodal message: either a text fragment
// or an image reference.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Content is the payload of a user turn. It is either plain text (Text set,
// Parts empty) or a multimodal part list. Use Text() via ExtractText to get
// the textual portion for prompt templates.
type Content struct {
	Text  string        `json:"text,omitempty"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// TextContent wraps a plain string as Content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// ExtractText normalizes Content down to its textual portion. For plain
// content it returns the text as-is; for multimodal content it joins the
// text parts with newlines and ignores image parts.
func ExtractText(c Content) string {
	if len(c.Parts) == 0 {
		return c.Text
	}

	var texts []string
	for _, part := range c.Parts {
		if part.Type == PartText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Message is one entry in the conversation history.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`

	// ModelID and InstanceID identify which model instance produced an
	// assistant message. Empty for user and system messages.
	ModelID    string `json:"model_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
}

// InputItem is a transport-level message: the flattened form sent to a
// model backend.
type InputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTurnID returns a unique identifier for one conversation turn.
func NewTurnID() string {
	return "turn-" + uuid.NewString()
}
