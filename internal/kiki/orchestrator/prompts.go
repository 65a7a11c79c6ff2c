package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
)

const shortAnswerNudge = " Please provide a detailed and comprehensive answer."

// refusal is returned verbatim when retrieval found nothing relevant.
func refusal(domain string) string {
	return fmt.Sprintf("I'm sorry, but I don't have information about that topic in my knowledge base. "+
		"I'm specifically designed to answer questions about %s. "+
		"Could you please ask me something related to %s?", domain, domain)
}

// buildContext lays out the admitted chunks with their source labels.
func buildContext(chunks []string, sources []retrieval.Source) string {
	var b strings.Builder
	for i, chunk := range chunks {
		src := retrieval.Source{Name: "Unknown"}
		if i < len(sources) && sources[i].Name != "" {
			src = sources[i]
		}
		if src.Page > 0 {
			fmt.Fprintf(&b, "[Source %d: %s, Page %d]\n%s\n\n", i+1, src.Name, src.Page, chunk)
		} else {
			fmt.Fprintf(&b, "[Source %d: %s]\n%s\n\n", i+1, src.Name, chunk)
		}
	}
	return b.String()
}

func ragPrompt(name, question, context, history string) string {
	var b strings.Builder
	if history != "" {
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "You are %s, a helpful AI assistant. Based on the past conversations above and the context below, "+
		"provide a detailed, informative answer with multiple paragraphs.\n\n"+
		"Context:\n%s\n\n"+
		"Question: %s\n\n"+
		"Answer (provide a comprehensive response):", name, context, question)
	return b.String()
}

func chatPrompt(name, question, history string) string {
	if history != "" {
		return fmt.Sprintf("These are our previous discussions: %s\n\nUser: %s\n%s (provide a detailed and helpful response with multiple paragraphs):",
			history, question, name)
	}
	return fmt.Sprintf("You are %s, a helpful AI assistant. Provide detailed, informative responses with multiple paragraphs.\n\nUser: %s\n%s:",
		name, question, name)
}

// truncateHead keeps the first max runes of s and marks the cut with "...".
func truncateHead(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// truncateTail keeps the last max runes of s.
func truncateTail(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}
