package rag

import (
	"fmt"
	"strings"

	"github.com/poiesic/policyrag/core"
)

const (
	// NoDocumentsMessage is returned when no Ready document matches a query.
	NoDocumentsMessage = "I don't have access to any policy documents yet. Please upload company policy documents first so I can help answer your questions."

	// ApologyMessage replaces an answer whose retrieval or generation failed.
	ApologyMessage = "I apologize, but I'm experiencing technical difficulties. Please try again later or contact IT support if the problem persists."

	// UnknownDocumentName names a source whose owning document is unavailable.
	UnknownDocumentName = "Unknown Document"

	connectionTestPrompt = "Hello, test connection"
)

const systemPrompt = `You are a corporate policy advisor AI assistant. Your role is to provide accurate, helpful answers about company policies based on the provided context.

Guidelines:
1. Base your answers strictly on the provided policy documents
2. If the context doesn't contain enough information, clearly state this
3. Maintain a professional, authoritative tone
4. Cite specific policy sections when possible
5. If asked about something not covered in the policies, direct users to consult HR or legal teams
6. Provide clear, actionable guidance when possible
7. Always prioritize accuracy over completeness`

const translatorPrompt = "You are a professional translator specializing in corporate policy documents. Translate the following text to %s while maintaining the exact meaning, context, and authoritative tone. Preserve any technical terms, policy references, and legal language. Return only the translation without explanations."

// buildSystemPrompt returns the advisor instruction, asking for an answer in
// language when it is not the base language.
func buildSystemPrompt(language, baseLanguage string) string {
	if language == baseLanguage {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf("\n\nImportant: Respond in %s, but preserve any specific policy terms, section numbers, or official terminology in their original language for accuracy.", LanguageName(language))
}

func buildUserPrompt(query, context string) string {
	return fmt.Sprintf(`Based on the following company policy documents, please answer this question: "%s"

Policy Context:
%s

Please provide a comprehensive answer based on the policy information above. If the policies don't contain enough information to fully answer the question, please state what additional resources the employee should consult.`, query, context)
}

// buildContext joins the chunk contents in result order, blank-line separated.
func buildContext(results []*core.SearchResult) string {
	var sb strings.Builder
	for i, result := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(result.Chunk.Content)
	}
	return sb.String()
}
