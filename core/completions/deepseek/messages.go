package deepseek

import (
	openai "github.com/sashabaranov/go-openai"
	"github.com/jinzhu/copier"

	"github.com/abyssvoice/abyss-core/core/completions"
)

func toMessages(messages []completions.Message) []openai.ChatCompletionMessage {
	var converted []openai.ChatCompletionMessage
	if err := copier.Copy(&converted, messages); err != nil {
		converted = make([]openai.ChatCompletionMessage, 0, len(messages))
		for _, message := range messages {
			converted = append(converted, openai.ChatCompletionMessage{
				Role:    string(message.Role),
				Content: message.Content,
			})
		}
	}
	return converted
}
