package services

import (
	"fmt"
	"strings"
)

const chatSystemPrompt = `You are the WevN Assistant, answering questions over the user's personal
knowledge base. Use the provided notes as your primary source; when they do
not cover the question, say so rather than inventing facts.

Respond with a single JSON object and nothing else. The object has exactly
these keys:
  "answer":      string, the answer in plain prose (required)
  "code_blocks": array of strings, any code snippets
  "commands":    array of strings, any shell commands
  "references":  array of strings, names of the notes you drew on
  "metadata":    object of string keys to string values

Do not wrap the object in markdown fences. Do not emit any text before or
after the object.`

const summarizeSystemPrompt = `You condense a conversation into a single reusable note. Respond with one
JSON object and nothing else, with exactly these keys:
  "name":    string, a short descriptive title for the note (required)
  "content": string, the summary itself (required)

Do not wrap the object in markdown fences.`

const compactionPrompt = `Summarize the following conversation in a few sentences, keeping the facts,
decisions, and open questions a future exchange would need. Respond with the
summary text only.

%s`

// BuildChatPrompt assembles the full prompt for a question: system
// instructions, retrieved notes, prior conversation, then the question.
func BuildChatPrompt(contextDocs []string, history, question string) string {
	var b strings.Builder
	b.WriteString(chatSystemPrompt)
	b.WriteString("\n\n## Notes\n")
	if len(contextDocs) == 0 {
		b.WriteString("(no relevant notes found)\n")
	}
	for _, doc := range contextDocs {
		b.WriteString("---\n")
		b.WriteString(doc)
		b.WriteString("\n")
	}
	if history != "" {
		b.WriteString("\n## Conversation so far\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	b.WriteString("\n## Question\n")
	b.WriteString(question)
	return b.String()
}

// BuildSummarizePrompt assembles the prompt that turns a session
// transcript (plus optional supporting notes) into a {name, content} note.
func BuildSummarizePrompt(contextDocs []string, history string) string {
	var b strings.Builder
	b.WriteString(summarizeSystemPrompt)
	if len(contextDocs) > 0 {
		b.WriteString("\n\n## Supporting notes\n")
		for _, doc := range contextDocs {
			b.WriteString("---\n")
			b.WriteString(doc)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n## Conversation\n")
	b.WriteString(history)
	return b.String()
}

// BuildCompactionPrompt asks the model to shrink old turns into a short
// running summary for the session store.
func BuildCompactionPrompt(transcript string) string {
	return fmt.Sprintf(compactionPrompt, transcript)
}

// BuildRepairPrompt re-asks after the model produced output that never
// yielded a valid object.
func BuildRepairPrompt(original, badOutput string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYour previous reply was not a valid JSON object:\n")
	b.WriteString(badOutput)
	b.WriteString("\n\nReply again with only the JSON object described above.")
	return b.String()
}
