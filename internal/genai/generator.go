package genai

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docrag/docrag/internal/rag"
)

// Generator produces model completions through genkit.Generate.
type Generator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenerator creates a Generator bound to one fully qualified model name.
func NewGenerator(r *Runtime) *Generator {
	return &Generator{g: r.Genkit, modelName: r.ModelName()}
}

// Generate runs one completion with a system instruction, the prior
// conversation turns and a final user prompt. Failures wrap
// rag.ErrGeneration.
func (g *Generator) Generate(ctx context.Context, system string, history []rag.ChatMessage, prompt string) (string, error) {
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == rag.RoleAssistant {
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Text)))
			continue
		}
		messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Text)))
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(prompt)))

	resp, err := genkit.Generate(ctx, g.g,
		ai.WithModelName(g.modelName),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", rag.ErrGeneration, err)
	}
	return resp.Text(), nil
}
