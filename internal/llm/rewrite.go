package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const rewriteInputMaxRunes = 260

var rewriteSystemPrompt = strings.Join([]string{
	"你是一个专业的英语教学助手，专注于根据学习者的 CEFR 等级进行个性化教学。",
	"只输出严格的 JSON 对象，不要输出 Markdown、代码块或额外解释。",
	`输出 schema: {"en": string, "supportCn"?: string}`,
}, "\n")

// RewriteRequest asks for a level-matched English rendering of one
// Chinese sentence.
type RewriteRequest struct {
	Text            string
	Domain          string
	DifficultyLevel string
}

// Rewrite is a successful sentence rewrite.
type Rewrite struct {
	En        string `json:"en"`
	SupportCn string `json:"supportCn,omitempty"`
}

// RewriteSentence renders req.Text into English pitched at the user's
// level. An empty en in the response is treated as endpoint failure.
func (o *Orchestrator) RewriteSentence(ctx context.Context, cfg config.LLMSettings, req RewriteRequest) (Rewrite, error) {
	input := Redact(req.Text, rewriteInputMaxRunes)
	if input == "" {
		return Rewrite{}, types.NewError(types.CodeInvalidRequest, "empty input")
	}
	level := cefrOrDefault(req.DifficultyLevel)

	user := strings.Join([]string{
		fmt.Sprintf("User Level: CEFR %s", level),
		fmt.Sprintf("Task: 把下面的中文句子改写为适合 %s 水平英语学习者的英文句子。", level),
		"要求：",
		"1. 英文 (en) 必须自然、地道，但词汇和语法复杂度应匹配用户等级。",
		"   - 如果是初级 (A1-A2)：使用高频词和简单句式。",
		"   - 如果是中级 (B1-B2)：加入适量的从句和进阶词汇。",
		"   - 如果是高级 (C1-C2)：使用更地道、精准甚至文学性的表达。",
		"2. 简短中文支撑 (supportCn)：提供句子的核心意译或难点提示（<=20字）。",
		fmt.Sprintf("domain: %s", req.Domain),
		"",
		fmt.Sprintf("中文句子：%s", input),
	}, "\n")

	raw, err := o.CompleteObject(ctx, cfg, Request{
		System:      rewriteSystemPrompt,
		User:        user,
		Temperature: 0.3,
	})
	if err != nil {
		return Rewrite{}, err
	}

	var out Rewrite
	if err := json.Unmarshal(raw, &out); err != nil {
		return Rewrite{}, types.WrapError(types.CodeLLMEndpointUnavailable, "invalid llm output", err)
	}
	out.En = strings.TrimSpace(out.En)
	out.SupportCn = strings.TrimSpace(out.SupportCn)
	if out.En == "" {
		return Rewrite{}, types.NewError(types.CodeLLMEndpointUnavailable, "invalid llm output")
	}
	return out, nil
}
