package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/metrics"
)

// ErrToolRounds is returned when the model keeps calling tools past the
// configured round limit.
var ErrToolRounds = errors.New("llm: tool call limit exceeded")

// GenAIGenerator generates text with the Gemini API. Bound tools are exposed
// as function declarations taking a single "query" string.
type GenAIGenerator struct {
	client    *genai.Client
	model     string
	temp      float32
	maxRounds int
	timeout   time.Duration
	log       *zap.Logger
}

var _ Generator = (*GenAIGenerator)(nil)

// NewGenAIGenerator creates a Gemini client from cfg.
func NewGenAIGenerator(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (*GenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: genai api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GenAIGenerator{
		client:    client,
		model:     cfg.Model,
		temp:      cfg.Temperature,
		maxRounds: rounds,
		timeout:   cfg.Timeout,
		log:       log,
	}, nil
}

// Generate runs the request, answering function calls with the bound tools
// until the model returns plain text.
func (g *GenAIGenerator) Generate(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() {
		metrics.LLMRequests.WithLabelValues("genai", metrics.Status(err)).Inc()
		metrics.ObserveSince(metrics.LLMDuration.WithLabelValues("genai"), start)
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := g.resolveModel(req.Model)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temp),
	}
	if sys := req.SystemPrompt(); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	byName := make(map[string]Tool, len(req.Tools))
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			byName[t.Name()] = t
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {Type: genai.TypeString, Description: "검색어"},
					},
					Required: []string{"query"},
				},
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt(), genai.RoleUser)}
	for round := 0; ; round++ {
		resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return "", fmt.Errorf("llm: generate: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			out := strings.TrimSpace(resp.Text())
			out += g.saveInlineFiles(resp, req.Files)
			if out == "" {
				return "", ErrEmptyResponse
			}
			return out, nil
		}
		if round >= g.maxRounds {
			return "", fmt.Errorf("%w (%d rounds)", ErrToolRounds, g.maxRounds)
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, g.callTool(ctx, byName, call)))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}
}

func (g *GenAIGenerator) callTool(ctx context.Context, tools map[string]Tool, call *genai.FunctionCall) map[string]any {
	tool, ok := tools[call.Name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(call.Name, "unknown").Inc()
		return map[string]any{"error": "unknown tool: " + call.Name}
	}
	query, _ := call.Args["query"].(string)
	out, err := tool.Call(ctx, query)
	metrics.ToolCalls.WithLabelValues(call.Name, metrics.Status(err)).Inc()
	if err != nil {
		g.log.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"output": out}
}

// saveInlineFiles hands inline image parts to the sink and returns their
// placeholders, each on its own paragraph.
func (g *GenAIGenerator) saveInlineFiles(resp *genai.GenerateContentResponse, sink FileSink) string {
	if sink == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for i, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		name := p.InlineData.DisplayName
		if name == "" {
			name = fmt.Sprintf("image-%d", i)
		}
		ref, err := sink.SaveFile(name, p.InlineData.MIMEType, p.InlineData.Data)
		if err != nil {
			g.log.Warn("save inline file", zap.String("name", name), zap.Error(err))
			continue
		}
		sb.WriteString("\n\n" + ref)
	}
	return sb.String()
}

// resolveModel keeps agent-level Gemini model references and falls back to
// the configured model for anything else ("openai/gpt-4.1" and the like).
func (g *GenAIGenerator) resolveModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if strings.HasPrefix(model, "gemini") {
		return model
	}
	return g.model
}
