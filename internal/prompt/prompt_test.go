package prompt

import (
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		mode            Mode
		text            string
		wantInstruction string
		wantLabel       string
	}{
		{ModeAnswer, "X", `Answer the following question: "X"`, "Question Answer"},
		{ModeSummarize, "long text", `Summarize the following text: "long text"`, "Text Summary"},
		{ModeGenerate, "a poem", `Generate creative content based on this request: "a poem"`, "Creative Content Generation"},
		{Mode("translate"), "hola", "hola", "General Query"},
		{Mode(""), "raw", "raw", "General Query"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := Build(tt.mode, tt.text)
			if p.Instruction != tt.wantInstruction {
				t.Errorf("Instruction = %q, want %q", p.Instruction, tt.wantInstruction)
			}
			if p.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", p.Label, tt.wantLabel)
			}
			if p.Text != tt.text || p.Mode != tt.mode {
				t.Errorf("Prompt kept %q/%q, want %q/%q", p.Mode, p.Text, tt.mode, tt.text)
			}
			if got := p.Request.PromptText(); got != tt.wantInstruction {
				t.Errorf("request text = %q, want %q", got, tt.wantInstruction)
			}
			if p.Request.Contents[0].Role != "user" {
				t.Errorf("role = %q, want user", p.Request.Contents[0].Role)
			}
		})
	}
}

func TestBuild_NoEscaping(t *testing.T) {
	text := `say "hi"` + "\n\t<b>"
	p := Build(ModeAnswer, text)
	if !strings.Contains(p.Instruction, text) {
		t.Errorf("instruction %q does not contain the raw text verbatim", p.Instruction)
	}
}

func TestModes(t *testing.T) {
	got := Modes()
	if len(got) != 3 {
		t.Fatalf("len(Modes()) = %d, want 3", len(got))
	}
	if got[1].Mode != ModeSummarize || got[1].Input != InputMultiLine {
		t.Errorf("summarize spec = %+v, want multi-line input", got[1])
	}
	got[0].Label = "mutated"
	if Modes()[0].Label != "Question Answer" {
		t.Error("Modes() must return a copy")
	}
	if !ModeGenerate.Valid() || Mode("other").Valid() {
		t.Error("Valid() misclassifies modes")
	}
}
