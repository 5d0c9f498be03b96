// Package completion wraps the chat model behind typed operations for each
// pipeline step: signal analysis, category merging, final synthesis, and
// follow-up chat. Model output is JSON; each operation parses and validates
// it against its contract.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Service is the completion surface the pipeline depends on.
type Service interface {
	Signal(ctx context.Context, req SignalRequest) (SignalResult, error)
	MergeCategory(ctx context.Context, req CategoryRequest) (CategoryResult, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (FinalReport, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// chatModel is the slice of the eino model interface we call, kept small so
// tests can fake it.
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// SignalRequest carries one analysis task and the fragments it is grounded
// in. Missing fragments were simply not collected; the prompt omits them.
type SignalRequest struct {
	Signal    string
	Focus     string
	HomeTeam  string
	AwayTeam  string
	Fragments map[string]json.RawMessage
}

// NamedSignal pairs a signal name with its result for merging.
type NamedSignal struct {
	Name   string
	Result SignalResult
}

// CategoryRequest merges a category's signal results.
type CategoryRequest struct {
	CategoryID string
	Title      string
	HomeTeam   string
	AwayTeam   string
	Signals    []NamedSignal
}

// NamedCategory pairs a category with its merged result for synthesis.
type NamedCategory struct {
	ID     string
	Title  string
	Result CategoryResult
}

// SynthesisRequest produces the final report from merged categories.
type SynthesisRequest struct {
	HomeTeam   string
	AwayTeam   string
	League     string
	Kickoff    string
	Categories []NamedCategory
}

// ChatMessage is one prior turn of a follow-up conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest answers a follow-up question about a finished report.
type ChatRequest struct {
	Question string
	History  []ChatMessage
	HomeTeam string
	AwayTeam string
	Report   json.RawMessage
}

// ModelService implements Service on an eino chat model.
type ModelService struct {
	model chatModel
}

// Config holds chat model settings. The API key comes from the environment.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewModelService builds a Service backed by an OpenAI-compatible endpoint.
func NewModelService(ctx context.Context, cfg Config) (*ModelService, error) {
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: create chat model: %w", err)
	}
	return &ModelService{model: cm}, nil
}

// Signal runs one analysis task. Malformed model output degrades to
// DefaultSignalResult rather than failing; only transport errors surface.
func (s *ModelService) Signal(ctx context.Context, req SignalRequest) (SignalResult, error) {
	out, err := s.generate(ctx, signalSystemPrompt, signalUserPrompt(req))
	if err != nil {
		return SignalResult{}, fmt.Errorf("completion: signal %s: %w", req.Signal, err)
	}

	var res SignalResult
	if err := parseJSON(out, &res); err != nil || !res.normalize() {
		log.Printf("completion: signal %s returned malformed output, using default", req.Signal)
		return DefaultSignalResult(req.Signal), nil
	}
	return res, nil
}

// MergeCategory merges signal results into category sections, retrying once
// on bad output before giving up.
func (s *ModelService) MergeCategory(ctx context.Context, req CategoryRequest) (CategoryResult, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.generate(ctx, mergeSystemPrompt, mergeUserPrompt(req))
		if err != nil {
			lastErr = err
			continue
		}
		var res CategoryResult
		if err := parseJSON(out, &res); err != nil {
			lastErr = err
			continue
		}
		if err := res.validate(); err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}
	return CategoryResult{}, fmt.Errorf("completion: merge category %s: %w", req.CategoryID, lastErr)
}

// Synthesize writes the final report, retrying once on bad output.
func (s *ModelService) Synthesize(ctx context.Context, req SynthesisRequest) (FinalReport, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.generate(ctx, synthesisSystemPrompt, synthesisUserPrompt(req))
		if err != nil {
			lastErr = err
			continue
		}
		var res FinalReport
		if err := parseJSON(out, &res); err != nil {
			lastErr = err
			continue
		}
		if err := res.validate(); err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}
	return FinalReport{}, fmt.Errorf("completion: synthesize: %w", lastErr)
}

// Chat answers a follow-up question as plain prose.
func (s *ModelService) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := []*schema.Message{schema.SystemMessage(chatSystemPrompt(req))}
	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}
	messages = append(messages, schema.UserMessage(req.Question))

	msg, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("completion: chat: %w", err)
	}
	return strings.TrimSpace(msg.Content), nil
}

func (s *ModelService) generate(ctx context.Context, system, user string) (string, error) {
	msg, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// parseJSON decodes model output that may be wrapped in a markdown fence.
func parseJSON(out string, v any) error {
	if err := sonic.Unmarshal([]byte(stripFences(out)), v); err != nil {
		return fmt.Errorf("completion: parse model output: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
