package gemini

import (
	"strings"

	"github.com/edgard/neogem/internal/database"
)

// DefaultImageInstruction is used when DescribeImage gets no instruction.
const DefaultImageInstruction = "Describe the content of this image."

// TranscribeInstruction asks the model for a plain transcript.
const TranscribeInstruction = "Transcribe this audio recording verbatim. Reply with the transcript only, without commentary."

// SentimentInstruction defines the prompt for sentiment scoring. The format
// string expects the message text.
const SentimentInstruction = `Rate the sentiment of the following chat message.
Return a score between -1 (very negative) and 1 (very positive) and a label: "positive", "neutral" or "negative".

Message:
%s`

// TranslateInstruction expects the source language, target language and text.
const TranslateInstruction = `Translate the following text from %s to %s.
Reply with the translation only, keeping formatting and emoji intact.

%s`

// TranslateAutoInstruction is used when the source language is unknown.
// It expects the target language and text.
const TranslateAutoInstruction = `Translate the following text to %s.
Reply with the translation only, keeping formatting and emoji intact.

%s`

// BuildPrompt prefixes prompt with the prior turns of the chat, oldest first.
// Without history the prompt is returned unchanged.
func BuildPrompt(prompt string, history []database.Turn) string {
	if len(history) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, t := range history {
		sb.WriteString("User: ")
		sb.WriteString(t.UserMessage)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(t.BotReply)
		sb.WriteString("\n")
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(prompt)
	return sb.String()
}
