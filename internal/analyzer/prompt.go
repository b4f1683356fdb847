package analyzer

import (
	"fmt"
	"unicode/utf8"
)

// maxPromptChars caps how much document text is sent per request. Long
// documents are truncated from the tail; classification signal concentrates
// at the top of a document.
const maxPromptChars = 12000

const systemPrompt = "You are a document analysis assistant. " +
	"You always respond with a single JSON object and no surrounding prose."

const promptTemplate = `Analyze the following document text and respond with a JSON object containing exactly these keys:

- "document_type": one of "invoice", "receipt", "contract", "letter", "form", "other"
- "confidence": your confidence in the classification, a number between 0 and 1
- "fields": an object of key fields found in the document (dates, amounts, parties, reference numbers), string values only
- "summary": a two or three sentence summary of the document
- "language": the ISO 639-1 code of the document language
- "word_count": the number of words in the document text

Document text:
---
%s
---

Respond with only the JSON object.`

func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, truncateRunes(text, maxPromptChars))
}

// truncateRunes cuts text to at most max bytes without splitting a UTF-8
// sequence.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
