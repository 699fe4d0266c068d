package context

import (
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Templates defines the renderers used by the summarizer: the auxiliary model
// prompt and the deterministic fallback sentence.
type Templates struct {
	Prompt   *template.Template
	Fallback *template.Template
}

// TemplateStrings exposes YAML-friendly string forms.
type TemplateStrings struct {
	Prompt   string `yaml:"prompt"`
	Fallback string `yaml:"fallback"`
}

const (
	defaultPromptTemplate = `Summarize this data-analysis conversation in 200 words or less. Focus on: what data was loaded, what tools were called, what visualizations were created, and what the user is trying to accomplish.

{{.Transcript}}`

	defaultFallbackTemplate = `Previous conversation ({{.Count}} messages): User interacted with the assistant{{if .ToolNames}}, calling tools including: {{join .ToolNames ", "}}{{end}}.`
)

// DefaultTemplates provides the built-in prompt and fallback templates.
func DefaultTemplates() Templates {
	return mustCompileTemplates(TemplateStrings{
		Prompt:   defaultPromptTemplate,
		Fallback: defaultFallbackTemplate,
	})
}

// LoadTemplates parses YAML template strings. Missing or blank entries fall
// back to the defaults; malformed templates degrade per-entry.
func LoadTemplates(data []byte) (Templates, error) {
	var t TemplateStrings
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Templates{}, err
	}
	if strings.TrimSpace(t.Prompt) == "" {
		t.Prompt = defaultPromptTemplate
	}
	if strings.TrimSpace(t.Fallback) == "" {
		t.Fallback = defaultFallbackTemplate
	}
	return mustCompileTemplates(t), nil
}

func mustCompileTemplates(s TemplateStrings) Templates {
	funcs := template.FuncMap{"join": strings.Join}
	compile := func(name, text, fallback string) *template.Template {
		tpl, err := template.New(name).Funcs(funcs).Parse(text)
		if err != nil {
			tpl = template.Must(template.New(name).Funcs(funcs).Parse(fallback))
		}
		return tpl
	}
	return Templates{
		Prompt:   compile("prompt", s.Prompt, defaultPromptTemplate),
		Fallback: compile("fallback", s.Fallback, defaultFallbackTemplate),
	}
}

// RenderPrompt builds the auxiliary model prompt around a transcript.
func (t Templates) RenderPrompt(transcript string) string {
	var b strings.Builder
	_ = t.Prompt.Execute(&b, map[string]any{"Transcript": transcript})
	return b.String()
}

// RenderFallback builds the deterministic summary sentence.
func (t Templates) RenderFallback(count int, toolNames []string) string {
	var b strings.Builder
	_ = t.Fallback.Execute(&b, map[string]any{"Count": count, "ToolNames": toolNames})
	return b.String()
}
