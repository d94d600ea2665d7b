package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/summary"
)

// ErrDownstream marks a failed slide or text generation.
var ErrDownstream = errors.New("orchestrator: downstream generation failed")

// TextFallbackKey holds unparseable text results.
const TextFallbackKey = "text_result"

var slideAgent = agent.Profile{
	ID:      "slide_designer",
	Name:    "슬라이드 디자이너",
	Role:    "발표 자료 구성 전문가",
	Goal:    "보고서 내용을 핵심 메시지 중심의 슬라이드로 재구성",
	Persona: "긴 문서를 청중이 한눈에 이해할 수 있는 장표로 압축하는 데 능숙하다.",
	Profile: "/images/chat-icon.png",
}

var textAgent = agent.Profile{
	ID:      "form_writer",
	Name:    "폼 작성 전문가",
	Role:    "양식 필드 작성 담당",
	Goal:    "보고서 내용을 근거로 각 양식 필드를 정확하고 간결하게 채움",
	Persona: "필드의 목적을 먼저 파악하고 근거 없는 내용을 지어내지 않는다.",
	Profile: "/images/chat-icon.png",
}

const slideTemplate = `아래 내용을 발표용 슬라이드로 구성하세요.

[주제]
%s

[근거 내용]
%s

[피드백 요약]
%s

[사용자 정보]
%s

[구성 규칙]
- 슬라이드는 "---" 줄로 구분합니다.
- 슬라이드마다 # 제목과 3~5개의 핵심 bullet을 둡니다.
- 수치와 결론을 우선하고 근거 내용에 없는 사실을 만들지 않습니다.`

const slideExpectedOutput = `마크다운 슬라이드 텍스트만 출력합니다. 전체를 코드 블록으로 감싸지 않습니다.`

const textTemplate = `아래 내용을 근거로 양식 필드를 작성하세요.

[주제]
%s

[근거 내용]
%s

[피드백 요약]
%s

[사용자 정보]
%s

[작성할 필드]
%s

[작성 규칙]
- 필드마다 key를 그대로 쓰고 text 설명에 맞는 값을 작성합니다.
- 근거 내용에서 확인되지 않는 값은 지어내지 말고 합리적으로 요약합니다.`

const textExpectedOutput = `JSON 객체만 출력합니다. {"필드key": "값", ...}`

// DownstreamInput is the shared context of slide and text generation.
type DownstreamInput struct {
	Topic    string
	UserInfo []store.UserInfo
	Summary  summary.Summary
	Files    llm.FileSink
}

// ProducedReport is a merged report in plan order.
type ProducedReport struct {
	Key     string
	Content string
}

// Downstream generates slides and texts from merged reports.
type Downstream struct {
	exec *agent.Executor
	log  *zap.Logger
}

// NewDownstream creates a Downstream.
func NewDownstream(exec *agent.Executor, log *zap.Logger) *Downstream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Downstream{exec: exec, log: log}
}

// eligible reports whether a form may run given the produced reports. Forms
// without dependencies always may; others need at least one produced
// dependency.
func eligible(f FormDescriptor, reports []ProducedReport) bool {
	if len(f.Dependencies) == 0 {
		return true
	}
	for _, r := range reports {
		if f.DependsOn(r.Key) {
			return true
		}
	}
	return false
}

// sourceFor returns the content a form is generated from: its produced
// dependencies in plan order, every report when it declares none, or the
// prior output summary when no report was produced.
func sourceFor(f FormDescriptor, reports []ProducedReport, sum summary.Summary) string {
	var parts []string
	for _, r := range reports {
		if len(f.Dependencies) == 0 || f.DependsOn(r.Key) {
			parts = append(parts, r.Content)
		}
	}
	if len(parts) == 0 {
		return sum.Output
	}
	return strings.Join(parts, SectionSeparator)
}

// Slides generates every eligible slide form once.
func (d *Downstream) Slides(ctx context.Context, phase PlanPhase, reports []ProducedReport, in DownstreamInput) (map[string]string, error) {
	ctx = agent.WithCrewType(ctx, agent.CrewSlide)
	out := make(map[string]string)
	for _, f := range phase.Forms {
		if f.Key == "" {
			continue
		}
		if !eligible(f, reports) {
			d.log.Info("slide skipped, dependencies not produced",
				zap.String("slide_key", f.Key), zap.Strings("dependencies", f.Dependencies))
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		raw, err := d.exec.Run(ctx, agent.Unit{
			JobID: "slide_" + f.Key,
			Agent: slideAgent,
			Task: agent.Task{
				Description: fmt.Sprintf(slideTemplate,
					in.Topic,
					orNone(sourceFor(f, reports, in.Summary)),
					orNone(in.Summary.Feedback),
					jsonOrNone(in.UserInfo)),
				ExpectedOutput: slideExpectedOutput,
			},
			Files: in.Files,
		})
		if err != nil {
			return out, fmt.Errorf("%w: slide %s: %w", ErrDownstream, f.Key, err)
		}
		out[f.Key] = raw
	}
	return out, nil
}

// Texts fills every eligible text form with a single generator call.
// Unparseable responses are kept under TextFallbackKey.
func (d *Downstream) Texts(ctx context.Context, phase PlanPhase, reports []ProducedReport, catalog []store.FormType, in DownstreamInput) (map[string]any, error) {
	ctx = agent.WithCrewType(ctx, agent.CrewText)
	out := make(map[string]any)

	var targets []store.FormType
	var sources []string
	seen := make(map[string]bool)
	for _, f := range phase.Forms {
		if f.Key == "" || seen[f.Key] {
			continue
		}
		if !eligible(f, reports) {
			d.log.Info("text skipped, dependencies not produced",
				zap.String("text_key", f.Key), zap.Strings("dependencies", f.Dependencies))
			continue
		}
		seen[f.Key] = true
		targets = append(targets, catalogEntry(f, catalog))
		if src := sourceFor(f, reports, in.Summary); src != "" && !contains(sources, src) {
			sources = append(sources, src)
		}
	}
	if len(targets) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	fields, _ := json.MarshalIndent(targets, "", "  ")
	raw, err := d.exec.Run(ctx, agent.Unit{
		JobID: "text_forms",
		Agent: textAgent,
		Task: agent.Task{
			Description: fmt.Sprintf(textTemplate,
				in.Topic,
				orNone(strings.Join(sources, SectionSeparator)),
				orNone(in.Summary.Feedback),
				jsonOrNone(in.UserInfo),
				string(fields)),
			ExpectedOutput: textExpectedOutput,
		},
		Files: in.Files,
	})
	if err != nil {
		return out, fmt.Errorf("%w: texts: %w", ErrDownstream, err)
	}

	var parsed map[string]any
	if err := llm.DecodeJSON(raw, &parsed); err != nil || parsed == nil {
		d.log.Warn("text result is not a JSON object, keeping raw text", zap.Error(err))
		out[TextFallbackKey] = map[string]any{"text": raw}
		return out, nil
	}
	for k, v := range parsed {
		out[k] = v
	}
	return out, nil
}

func catalogEntry(f FormDescriptor, catalog []store.FormType) store.FormType {
	for _, ft := range catalog {
		if ft.Key == f.Key {
			return ft
		}
	}
	t := f.Type
	if t == "" {
		t = "text"
	}
	return store.FormType{Key: f.Key, Type: t}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
