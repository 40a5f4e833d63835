package prompt

import (
	"gopherai-assistant/internal/ai"
)

// Mode selects one of the canned instruction templates.
type Mode string

const (
	ModeAnswer    Mode = "answer"
	ModeSummarize Mode = "summarize"
	ModeGenerate  Mode = "generate"
)

const LabelGeneral = "General Query"

// Prompt is a provider-ready request plus its display label.
type Prompt struct {
	Mode        Mode
	Text        string
	Instruction string
	Label       string
	Request     ai.GenerateContentRequest
}

// Build interpolates text verbatim into the template for mode. Unknown modes
// pass the text through as a general query.
func Build(mode Mode, text string) Prompt {
	instruction := text
	label := LabelGeneral
	if spec, ok := lookup(mode); ok {
		instruction = spec.Template + `"` + text + `"`
		label = spec.Label
	}
	return Prompt{
		Mode:        mode,
		Text:        text,
		Instruction: instruction,
		Label:       label,
		Request:     ai.NewTextRequest(instruction),
	}
}

// Valid reports whether mode is one of the known templates.
func (m Mode) Valid() bool {
	_, ok := lookup(m)
	return ok
}

// InputStyle tells the page which input control fits a mode.
type InputStyle string

const (
	InputSingleLine InputStyle = "single_line"
	InputMultiLine  InputStyle = "multi_line"
)

type ModeSpec struct {
	Mode        Mode       `json:"mode"`
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	Template    string     `json:"-"`
	Input       InputStyle `json:"input"`
	Placeholder string     `json:"placeholder"`
}

var modes = []ModeSpec{
	{
		Mode:        ModeAnswer,
		Name:        "Answer Questions",
		Label:       "Question Answer",
		Template:    "Answer the following question: ",
		Input:       InputSingleLine,
		Placeholder: "e.g., What is the capital of France?",
	},
	{
		Mode:        ModeSummarize,
		Name:        "Summarize Text",
		Label:       "Text Summary",
		Template:    "Summarize the following text: ",
		Input:       InputMultiLine,
		Placeholder: "Paste text here to summarize...",
	},
	{
		Mode:        ModeGenerate,
		Name:        "Generate Creative Content",
		Label:       "Creative Content Generation",
		Template:    "Generate creative content based on this request: ",
		Input:       InputSingleLine,
		Placeholder: "e.g., Write a short story about a dragon and a princess",
	},
}

// Modes lists the selectable modes in display order.
func Modes() []ModeSpec {
	out := make([]ModeSpec, len(modes))
	copy(out, modes)
	return out
}

func lookup(mode Mode) (ModeSpec, bool) {
	for _, m := range modes {
		if m.Mode == mode {
			return m, true
		}
	}
	return ModeSpec{}, false
}
