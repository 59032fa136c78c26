package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/ports/adapter"
)

var _ adapter.GenerationAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter produces companion persona text through the Gemini SDK.
// Gemini has no async job API, so Submit runs the generation on a background
// goroutine and Poll reads the local flight table. External refs are
// therefore meaningless across process restarts; an in-flight generation
// lost to a crash surfaces as the worker's poll budget expiring.
type GeminiAdapter struct {
	client *genai.Client
	model  string

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	done    bool
	payload []byte
	reason  string
}

func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{
		client:  c,
		model:   model,
		flights: make(map[string]*flight),
	}, nil
}

type personaParams struct {
	Prompt string `json:"prompt"`
	Name   string `json:"name"`
}

func (g *GeminiAdapter) ValidateParams(params json.RawMessage) error {
	var p personaParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidParams)
	}
	return nil
}

func (g *GeminiAdapter) Submit(ctx context.Context, params json.RawMessage) (string, error) {
	var p personaParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}

	ref := uuid.NewString()
	fl := &flight{}
	g.mu.Lock()
	g.flights[ref] = fl
	g.mu.Unlock()

	// Detached from the submit ctx: the poll loop, not the submit call,
	// bounds this generation's lifetime.
	go g.run(ref, p)
	return ref, nil
}

func (g *GeminiAdapter) run(ref string, p personaParams) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	chat, err := g.client.Chats.Create(ctx, g.model, &genai.GenerateContentConfig{
		MaxOutputTokens: 2048,
	}, nil)
	if err != nil {
		g.finish(ref, nil, err.Error())
		return
	}

	prompt := p.Prompt
	if p.Name != "" {
		prompt = fmt.Sprintf("Create a companion persona named %q. %s", p.Name, p.Prompt)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		g.finish(ref, nil, err.Error())
		return
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		g.finish(ref, nil, "empty model reply")
		return
	}
	g.finish(ref, []byte(text), "")
}

func (g *GeminiAdapter) finish(ref string, payload []byte, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fl, ok := g.flights[ref]; ok {
		fl.done = true
		fl.payload = payload
		fl.reason = reason
	}
}

func (g *GeminiAdapter) Poll(ctx context.Context, externalRef string) (adapter.PollResult, error) {
	g.mu.Lock()
	fl, ok := g.flights[externalRef]
	var snapshot flight
	if ok {
		snapshot = *fl
		if snapshot.done {
			delete(g.flights, externalRef)
		}
	}
	g.mu.Unlock()

	if !ok {
		return adapter.PollResult{}, fmt.Errorf("%w: unknown generation %s", domain.ErrAdapterUnavailable, externalRef)
	}
	if !snapshot.done {
		return adapter.PollResult{State: adapter.PollRunning}, nil
	}
	if snapshot.reason != "" {
		return adapter.PollResult{State: adapter.PollFailed, Reason: snapshot.reason}, nil
	}
	return adapter.PollResult{State: adapter.PollSucceeded, Payload: snapshot.payload}, nil
}
