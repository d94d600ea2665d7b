package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/formcrew/internal/summary"
)

func TestBuildSectionTask(t *testing.T) {
	sec := sections("시장 분석")[0]

	task := BuildSectionTask(sec, "분기 보고", summary.Summary{Output: "지난 분기 매출 10억", Feedback: "@@분석가 수치 보강"})
	assert.Contains(t, task.Description, "[주제] 분기 보고")
	assert.Contains(t, task.Description, "write 시장 분석")
	assert.Contains(t, task.Description, "[이전 작업 결과 요약]\n지난 분기 매출 10억")
	assert.Contains(t, task.Description, "[이전 피드백 요약]\n@@분석가 수치 보강")
	assert.Contains(t, task.Description, "현재 섹션 '시장 분석'")
	assert.Contains(t, task.ExpectedOutput, "markdown")
	assert.Contains(t, task.ExpectedOutput, "3,000단어")

	bare := BuildSectionTask(sec, "", summary.Summary{})
	assert.NotContains(t, bare.Description, "[주제]")
	assert.NotContains(t, bare.Description, "[이전 작업 결과 요약]")
	assert.NotContains(t, bare.Description, "[이전 피드백 요약]")
}
