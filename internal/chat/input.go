package chat

// FilterMessagesForModel returns the slice of history relevant to one model:
// every user and system message, plus assistant messages that the given
// model produced. Assistant messages from other models are dropped so each
// model only ever sees its own prior turns.
func FilterMessagesForModel(messages []Message, modelID string) []Message {
	filtered := make([]Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			if msg.ModelID == modelID {
				filtered = append(filtered, msg)
			}
		default:
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// MessagesToInputItems flattens conversation messages into transport input
// items. Multimodal content is reduced to its text portion.
func MessagesToInputItems(messages []Message) []InputItem {
	items := make([]InputItem, 0, len(messages))
	for _, msg := range messages {
		items = append(items, InputItem{
			Role:    string(msg.Role),
			Content: ExtractText(msg.Content),
		})
	}
	return items
}
