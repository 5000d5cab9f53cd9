package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

// Mode selects the assistant's tone.
type Mode string

const (
	ModeAssistant Mode = "assistant"
	ModeTutor     Mode = "tutor"
	ModeNavigator Mode = "navigator"
)

// ParseMode normalizes a client supplied mode; unknown or empty values fall back to assistant.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeTutor:
		return ModeTutor
	case ModeNavigator:
		return ModeNavigator
	default:
		return ModeAssistant
	}
}

// PromptTemplate defines the tone of one mode.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
}

// PromptBuilder renders system prompts grounded in the course catalog.
type PromptBuilder struct {
	templates map[Mode]*PromptTemplate
}

// NewPromptBuilder creates a builder with the built-in mode templates.
func NewPromptBuilder() *PromptBuilder {
	builder := &PromptBuilder{
		templates: make(map[Mode]*PromptTemplate),
	}
	builder.loadDefaultTemplates()
	return builder
}

const envelopeRules = `回复格式要求：
只输出一个 JSON 对象，不要输出任何 JSON 之外的文字，也不要使用代码块：
{"message": "给学习者看的回复正文", "navigationLinks": [{"label": "链接标题", "url": "/站内路径"}]}
- message 为必填字符串。
- navigationLinks 可以为空数组，最多 5 个，只能引用下方课程目录里真实存在的条目。
- 允许的路径格式：
  /books/{id}
  /units/{id}
  /lessons/{id}/{mode}，mode 必须与课程类型一致（vocabulary、reading、conversation）；
  只有 vocabulary 类型的课程可以额外使用 practice 或 test。
- 不要输出站外链接。`

// BuildSystemPrompt renders the system prompt for mode with the given catalog outline.
func (pb *PromptBuilder) BuildSystemPrompt(mode Mode, outline catalog.Outline) string {
	template, ok := pb.templates[mode]
	if !ok {
		template = pb.templates[ModeAssistant]
	}

	return fmt.Sprintf(`%s

风格提示：
- %s

%s

课程目录：
%s`,
		template.SystemPrompt,
		strings.Join(template.PersonalityHints, "\n- "),
		envelopeRules,
		renderOutline(outline),
	)
}

// renderOutline lists books, their units and lessons with ids and lesson types.
func renderOutline(outline catalog.Outline) string {
	if len(outline.Books) == 0 && len(outline.Units) == 0 && len(outline.Lessons) == 0 {
		return "（目录为空，请不要输出任何 navigationLinks）"
	}

	lessonsByUnit := make(map[int64][]catalog.Lesson)
	for _, lesson := range outline.Lessons {
		lessonsByUnit[lesson.UnitID] = append(lessonsByUnit[lesson.UnitID], lesson)
	}
	unitsByBook := make(map[int64][]catalog.Unit)
	for _, unit := range outline.Units {
		unitsByBook[unit.BookID] = append(unitsByBook[unit.BookID], unit)
	}

	var b strings.Builder
	for _, book := range outline.Books {
		fmt.Fprintf(&b, "- 教材 %q (id=%d)\n", book.Title, book.ID)
		for _, unit := range unitsByBook[book.ID] {
			fmt.Fprintf(&b, "  - 单元 %q (id=%d)\n", unit.Title, unit.ID)
			for _, lesson := range lessonsByUnit[unit.ID] {
				fmt.Fprintf(&b, "    - 课程 %q (id=%d, type=%s)\n", lesson.Title, lesson.ID, lesson.Type)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// loadDefaultTemplates loads the built-in mode templates.
func (pb *PromptBuilder) loadDefaultTemplates() {
	pb.templates[ModeAssistant] = &PromptTemplate{
		SystemPrompt: `你是 Z Lingo 的英语学习助手，帮助学习者解答英语问题并推荐合适的课程内容。`,
		PersonalityHints: []string{
			"回答简洁友好，优先给出直接可用的例句",
			"学习者用中文提问时用中文解释，例句保持英文",
			"在回答与课程相关时附上对应的课程链接",
		},
	}

	pb.templates[ModeTutor] = &PromptTemplate{
		SystemPrompt: `你是一位耐心的英语老师，通过提问和纠错引导学习者自己找到答案。`,
		PersonalityHints: []string{
			"先指出学习者表达中的问题，再给出改进后的说法",
			"每次只讲一个知识点，避免信息过载",
			"适当布置一个简短的练习，并推荐可以巩固该知识点的课程",
		},
	}

	pb.templates[ModeNavigator] = &PromptTemplate{
		SystemPrompt: `你是 Z Lingo 的课程导航员，负责根据学习者的目标推荐教材、单元和课程。`,
		PersonalityHints: []string{
			"message 用一两句话说明推荐理由",
			"尽量给出从易到难排列的多个链接",
			"学习者目标不明确时先询问水平和目标",
		},
	}
}
