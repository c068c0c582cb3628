// Package prompt renders retrieved chunks and a question into one
// completion-ready prompt.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/DreamCats/briefly/internal/retrieval"
)

// ContextSeparator sits between rendered chunks.
const ContextSeparator = "\n\n---\n\n"

// QueryTemplate answers one free-form question.
const QueryTemplate = `{{ .Persona }}

---------------------------------

The data:
{{ .Context }}

---------------------------------

Question: {{ .Question | trim }}`

// ExtractionTemplate answers one field instruction.
const ExtractionTemplate = `{{ .Persona }}

Context:
{{ .Context }}

---

Instruction: {{ .Question | trim }}
Reply with the answer only.`

// Data fills a template.
type Data struct {
	Persona  string
	Context  string
	Question string
}

// Assembler holds one parsed template.
type Assembler struct {
	tmpl *template.Template
}

// New parses text, which must reference both {{ .Context }} and
// {{ .Question }}.
func New(name, text string) (*Assembler, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	a := &Assembler{tmpl: tmpl}

	const ctxMark, qMark = "\x00context\x00", "\x00question\x00"
	rendered, err := a.Render(Data{Context: ctxMark, Question: qMark})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(rendered, ctxMark) {
		return nil, fmt.Errorf("template %s does not render {{ .Context }}", name)
	}
	if !strings.Contains(rendered, qMark) {
		return nil, fmt.Errorf("template %s does not render {{ .Question }}", name)
	}
	return a, nil
}

// LoadFile parses a template stored on disk.
func LoadFile(path string) (*Assembler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return New(path, string(data))
}

// Load returns the template at path, or the built-in fallback when path
// is empty.
func Load(path, fallback string) (*Assembler, error) {
	if path == "" {
		return New("default", fallback)
	}
	return LoadFile(path)
}

// Render executes the template.
func (a *Assembler) Render(d Data) (string, error) {
	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render template %s: %w", a.tmpl.Name(), err)
	}
	return buf.String(), nil
}

// Assemble formats results as context and renders the prompt.
func (a *Assembler) Assemble(persona string, results []retrieval.Result, question string) (string, error) {
	return a.Render(Data{
		Persona:  persona,
		Context:  FormatContext(results),
		Question: question,
	})
}

// FormatContext labels each chunk with its id and joins them in the given
// order.
func FormatContext(results []retrieval.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = "[ID: " + r.Chunk.ID() + "]\n" + r.Chunk.Text
	}
	return strings.Join(parts, ContextSeparator)
}
