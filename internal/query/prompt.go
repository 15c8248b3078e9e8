package query

import (
	"fmt"
	"regexp"
	"strings"

	"docseek/internal/domain"
	"docseek/internal/llm"
)

const systemPrompt = "You are a helpful file exploration assistant. " +
	"The following is the content of the document searched based on the user's query. : {context}" +
	"If the document does not contain an answer to the user's query, politely state that no matching file exists." +
	"If it does contain an answer, provide a brief response to the query along with the file location" +
	"Please always answer in {language}."

const paraphrasePrompt = "You are an AI language model assistant. Your task is to generate %d " +
	"different versions of the given user question to retrieve relevant documents from a vector " +
	"database. By generating multiple perspectives on the user question, your goal is to help the " +
	"user overcome some of the limitations of distance-based similarity search. " +
	"Provide these alternative questions separated by newlines and nothing else."

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// RenderContext formats documents as the {context} block of the prompt.
func RenderContext(docs []domain.Document) string {
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[file: ")
		sb.WriteString(d.Source())
		if page, ok := d.Metadata[domain.MetaPage]; ok {
			fmt.Fprintf(&sb, ", page %v", page)
		}
		if typ, ok := d.Metadata[domain.MetaType].(string); ok && typ != "" {
			fmt.Fprintf(&sb, ", %s", typ)
		}
		sb.WriteString("]\n")
		sb.WriteString(d.Content)
	}
	return sb.String()
}

// Messages builds the system and user messages for a question.
func Messages(question, language string, docs []domain.Document) []llm.Message {
	sys := strings.NewReplacer("{context}", RenderContext(docs), "{language}", language).Replace(systemPrompt)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys},
		{Role: llm.RoleUser, Content: question},
	}
}

// ParseParaphrases reads one question per line, dropping list markers,
// blanks and repeats of the original question.
func ParseParaphrases(text, original string, n int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		key := strings.ToLower(line)
		if line == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
