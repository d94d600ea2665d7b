// Package summary condenses the finished outputs and feedback of earlier
// process steps into the context handed to the next crew.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/formcrew/internal/llm"
)

// Summary is the prior context of a work item.
type Summary struct {
	Output   string `json:"output_summary"`
	Feedback string `json:"feedback_summary"`
}

// Empty reports whether neither summary has content.
func (s Summary) Empty() bool {
	return strings.TrimSpace(s.Output) == "" && strings.TrimSpace(s.Feedback) == ""
}

const (
	role    = "요약 전문가"
	goal    = "이전 산출물과 피드백에서 후속 작업에 필요한 핵심만 정확히 추출"
	persona = "보고서와 폼 산출물을 목차 단위로 구조화해 요약하는 데 익숙하며 원문을 왜곡하지 않는다."
)

const rules = `[요약 규칙]
- 전체 분량은 2000자 이내로 작성합니다.
- 목차 제목은 원문 그대로 옮기고 새 목차를 만들거나 이름을 바꾸지 않습니다.
- 숫자와 데이터, 구체적 사실을 가장 먼저 담습니다.
- 목차가 없는 단순 텍스트는 목적과 요구사항만 정리하고 목차별 요약 섹션을 만들지 않습니다.
- 요약만 수행하며 피드백을 반영해 내용을 고치지 않습니다.`

const outputTemplate = `아래 이전 단계 산출물을 요약하세요.

%s

[산출물]
%s

[출력 형식]
📋 제목: (원문 제목, 없으면 흐름에 맞게 정의)
📌 목적:
📌 요구사항:
🎯 목차별 핵심 요약: (목차가 있을 때만)
1️⃣ (목차 제목 그대로)
   • 핵심 내용 한 문장씩, 최대 세 줄`

const feedbackTemplate = `아래 피드백을 요약하세요.

%s
- "@@에이전트명"으로 특정 에이전트를 지정한 피드백은 에이전트별로 모아 이름을 밝힙니다.
- 지정이 없는 피드백은 전역 피드백으로 따로 모읍니다.

[피드백]
%s

[출력 형식]
🎯 에이전트별 피드백:
- @@에이전트명: 내용
🌐 전역 피드백:
- 내용`

// Summarizer produces a Summary with two independent generator calls.
type Summarizer struct {
	gen llm.Generator
	log *zap.Logger
}

// New creates a Summarizer.
func New(gen llm.Generator, log *zap.Logger) *Summarizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{gen: gen, log: log}
}

// Summarize condenses outputs and feedback concurrently. An empty source
// skips its call and leaves that half of the summary empty. The halves are
// independent: a failed call leaves its half empty, and the returned
// Summary keeps the other half even when err is non-nil.
func (s *Summarizer) Summarize(ctx context.Context, outputs, feedback any) (Summary, error) {
	var out Summary
	var outputErr, feedbackErr error
	outputText := Stringify(outputs)
	feedbackText := Stringify(feedback)

	var g errgroup.Group
	if outputText != "" {
		g.Go(func() error {
			out.Output, outputErr = s.call(ctx, fmt.Sprintf(outputTemplate, rules, outputText))
			if outputErr != nil {
				outputErr = fmt.Errorf("summarize outputs: %w", outputErr)
				s.log.Warn("output summary failed", zap.Error(outputErr))
			}
			return nil
		})
	}
	if feedbackText != "" {
		g.Go(func() error {
			out.Feedback, feedbackErr = s.call(ctx, fmt.Sprintf(feedbackTemplate, rules, feedbackText))
			if feedbackErr != nil {
				feedbackErr = fmt.Errorf("summarize feedback: %w", feedbackErr)
				s.log.Warn("feedback summary failed", zap.Error(feedbackErr))
			}
			return nil
		})
	}
	_ = g.Wait()
	s.log.Debug("context summarized",
		zap.Int("output_chars", len([]rune(out.Output))),
		zap.Int("feedback_chars", len([]rune(out.Feedback))))
	return out, errors.Join(outputErr, feedbackErr)
}

func (s *Summarizer) call(ctx context.Context, task string) (string, error) {
	text, err := s.gen.Generate(ctx, llm.Request{
		Role:    role,
		Goal:    goal,
		Persona: persona,
		Task:    task,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Stringify renders a summary source as text. Strings pass through; other
// values are JSON encoded without HTML escaping. Nil, empty collections and
// collections of only nil values render as "".
func Stringify(v any) string {
	if isBlank(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		for _, e := range t {
			if !isBlank(e) {
				return false
			}
		}
		return true
	case map[string]any:
		return len(t) == 0
	}
	return false
}
