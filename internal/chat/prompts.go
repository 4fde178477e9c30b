package chat

import (
	"fmt"
	"strings"

	"github.com/docrag/docrag/internal/rag"
)

// System prompt for retrieval-augmented answers.
const systemPromptRAG = `You are a helpful assistant that answers questions based on the user's knowledge base.
You will be provided with relevant documents from the knowledge base to help answer the user's questions.
Generate a response based on the documents provided, focusing on the most relevant ones (higher scores).
Ignore documents that are not relevant to the user's question.
If you cannot generate a helpful response from the provided documents, politely explain this to the user.
When appropriate, cite the specific documents you used by referring to their document numbers.
Respond in the same language as the user's question.
Be polite, respectful, precise, and concise in your response.`

// System prompt for plain chat without retrieval.
const systemPromptBasic = `You are a helpful assistant that answers questions in a conversational manner.
Maintain a friendly and helpful tone in your responses.
If you don't know the answer, be honest about it.
Keep your responses concise and to the point.
Respond in the same language as the user's question.`

// noDocumentsAnswer is returned verbatim when retrieval finds nothing; no
// model call is made since there is nothing to ground an answer on.
func noDocumentsAnswer(question string) string {
	return strings.Join([]string{
		fmt.Sprintf("I couldn't find any relevant documents in the knowledge base that match your question about %q.", question),
		"Here are some suggestions:",
		"1. Try rephrasing your question with different keywords",
		"2. Check if your question is related to topics covered in the knowledge base",
		"3. Be more specific about what you're looking for",
	}, "\n")
}

// buildRAGPrompt renders the retrieved chunks and the question into the
// user prompt: a numbered document block per chunk, then the question.
func buildRAGPrompt(question string, chunks []rag.RetrievedChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below are %d relevant documents from the knowledge base that might help answer your question:\n\n", len(chunks))

	for i, c := range chunks {
		fmt.Fprintf(&b, "## Document Number: %d\n", i+1)
		fmt.Fprintf(&b, "## Relevance Score: %.4f\n", c.Score)
		fmt.Fprintf(&b, "### Content: %s\n###\n", c.Text)
	}

	b.WriteString("\n---\n")
	b.WriteString("Based only on the above documents, please generate an answer for the user.\n")
	b.WriteString("If the documents don't contain relevant information, acknowledge this and suggest what might help.\n")
	b.WriteString("When citing information, mention the document number (e.g., 'According to Document 1...').\n\n")
	b.WriteString("## Question:\n")
	b.WriteString(question)
	b.WriteString("\n\n## Answer:\n")
	return b.String()
}
