package llm

import "strings"

// Placeholders recognised in custom prompts.
const (
	PlaceholderQuery   = "{query}"
	PlaceholderContext = "{context}"
)

// NoContextFallback replaces {context} in custom prompts when nothing was
// retrieved.
const NoContextFallback = "No relevant context found in the uploaded documents."

const contextTemplate = `You are a helpful AI assistant. Use the following context from uploaded documents to answer the user's question. If the context doesn't contain relevant information, say so clearly.

Context from documents:
{context}

User Question: {query}

Please provide a helpful and accurate answer based on the context above.`

const noContextTemplate = `You are a helpful AI assistant. Answer the following question to the best of your ability.

User Question: {query}

Please provide a helpful and accurate answer.`

// RenderPrompt builds the final prompt for question. An empty context means
// none was found.
//
// With a custom prompt, every literal {query} becomes question and every
// {context} becomes context or NoContextFallback. Substitution is a single
// pass, so placeholder text inside the question or context is left as is.
// Without one, the built-in context or no-context template is used.
func RenderPrompt(question, context, customPrompt string) string {
	if customPrompt != "" {
		ctx := context
		if ctx == "" {
			ctx = NoContextFallback
		}
		return strings.NewReplacer(PlaceholderQuery, question, PlaceholderContext, ctx).Replace(customPrompt)
	}

	if context != "" {
		return strings.NewReplacer(PlaceholderQuery, question, PlaceholderContext, context).Replace(contextTemplate)
	}
	return strings.NewReplacer(PlaceholderQuery, question).Replace(noContextTemplate)
}
