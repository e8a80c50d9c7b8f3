package llm

import (
	"context"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	if projectID == "" {
		return nil, errors.New("vertex: project id is empty")
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Name() string { return "vertex" }

func (v *VertexGemini) Close() error { return v.client.Close() }

// Reply replays history into a chat session and streams the answer to the
// last user message. A model handle is built per call because the system
// instruction differs between sessions.
func (v *VertexGemini) Reply(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	if len(history) == 0 {
		return "", errors.New("vertex: empty history")
	}

	m := v.client.GenerativeModel(v.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(systemPrompt)}}
	}

	cs := m.StartChat()
	last := history[len(history)-1]
	for _, msg := range history[:len(history)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  role,
			Parts: []vertexgenai.Part{vertexgenai.Text(msg.Content)},
		})
	}

	var sb strings.Builder
	it := cs.SendMessageStream(ctx, vertexgenai.Text(last.Content))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("vertex: empty reply")
	}
	return out, nil
}
