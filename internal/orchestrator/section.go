package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/summary"
)

const sectionRules = `

[작업 원칙]
1. 이전 피드백이 특정 에이전트(@@에이전트명) 대상인지 전역 피드백인지 구분해 반드시 반영합니다.
2. 이전 작업의 목적과 요구사항을 현재 섹션에서도 일관되게 유지합니다.
3. 현재 섹션 '%s'의 목적에 맞는 전문적인 내용을 작성합니다.

[도구 사용 순서]
1. mem0(query="작성할 섹션과 관련된 구체적 정보")로 개인 지식을 먼저 조회합니다.
2. memento(query="관련 사내 문서")로 사내 문서를 검색해 내용을 보강합니다.
3. 그 밖의 도구는 최신 정보가 필요할 때만 사용합니다.
- 검색어는 구체적으로 작성합니다. null, 빈 문자열, 공백, "None" 같은 검색어는 절대 사용하지 않습니다.
- 웹사이트에 직접 접속하거나 주소를 만들어내지 않습니다.
- 참고한 지식과 문서의 출처를 본문에 밝힙니다.

[내용 구성]
- 도구 결과가 없어도 이전 컨텍스트와 피드백을 바탕으로 완성된 내용을 작성합니다.
- 표면적인 설명이 아니라 실무에 바로 쓸 수 있는 구체적 사례와 수치를 담습니다.`

const sectionOutputRules = `

[섹션 품질 기준]
- 섹션 '%s'에 이전 결과와 피드백을 자연스럽게 통합합니다.
- 최소 3,000단어 이상의 상세한 내용을 작성합니다.
- 관련 절차와 모범 사례, 주의사항을 함께 다룹니다.

[출력 형식]
- 순수한 마크다운 텍스트만 출력하고 전체를 코드 블록으로 감싸지 않습니다.
- ## 제목, ### 소제목, **강조**, - 목록으로 구조를 잡습니다.
- 도구 검색 결과가 부족해도 반드시 완성된 섹션을 제공합니다.`

// BuildSectionTask renders the task of one section: the matcher's
// description, the prior context blocks that are present and the fixed
// operating rules.
func BuildSectionTask(sec Section, topic string, sum summary.Summary) agent.Task {
	var desc strings.Builder
	if topic != "" {
		desc.WriteString("[주제] " + topic + "\n\n")
	}
	desc.WriteString(strings.TrimSpace(sec.Task.Description))
	if s := strings.TrimSpace(sum.Output); s != "" {
		desc.WriteString("\n\n[이전 작업 결과 요약]\n" + s)
	}
	if s := strings.TrimSpace(sum.Feedback); s != "" {
		desc.WriteString("\n\n[이전 피드백 요약]\n" + s)
	}
	desc.WriteString(fmt.Sprintf(sectionRules, sec.TOC.Title))

	expected := strings.TrimSpace(sec.Task.ExpectedOutput)
	return agent.Task{
		Description:    desc.String(),
		ExpectedOutput: expected + fmt.Sprintf(sectionOutputRules, sec.TOC.Title),
	}
}
