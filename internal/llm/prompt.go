package llm

import (
	"fmt"
	"strings"
)

// AssistantSystemPrompt is the system message for the synthesis call.
const AssistantSystemPrompt = "You are a professional AI assistant."

// ToolSystemPrompt is the system message for the tool-selection call.
const ToolSystemPrompt = "You are a data analyst working with a single table. " +
	"When the question can be answered by one of the provided tools, call exactly one tool. " +
	"Otherwise answer directly."

const answerTemplate = `You are a professional document analyst and data analyst. Your job is to answer the user's question using the retrieved result data.
----------------------------------------
User question: %s
Retrieved result data: %s
----------------------------------------
Answer the user's question based on the question and the result data. Reply in the language of the question.`

// RenderAnswerPrompt fills the synthesis template with the raw query and
// the JSON of the combined results.
func RenderAnswerPrompt(query, resultsJSON string) string {
	return fmt.Sprintf(answerTemplate, strings.TrimSpace(query), resultsJSON)
}

// AnswerMessages builds the two-message conversation for the synthesis call.
func AnswerMessages(query, resultsJSON string) []Message {
	return []Message{
		{Role: "system", Content: AssistantSystemPrompt},
		{Role: "user", Content: RenderAnswerPrompt(query, resultsJSON)},
	}
}
