package analysis

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/saint0x/reposage/pkg/types"
)

const systemPrompt = `You are an expert software engineer reviewing a single file of a repository.
You identify quality issues, potential bugs and performance problems, and you write concrete, minimal fixes.
You only change what you can justify, and you keep the file's existing style.
You answer with one JSON object and nothing else.`

const userPrompt = `Analyze the following {{.Language}} file and propose concrete improvements.

File: {{.Path}}
{{- if .Description}}

Focus on the following aspects: {{.Description}}
{{- end}}
{{- if .History}}

Changes already made to this repository by earlier runs (do not repeat them):
{{.History}}
{{- end}}

Respond with a JSON object with the following structure:
{
  "summary": "One line summary of the improvements",
  "analysis": {
    "code_quality": "Code quality issues",
    "best_practices": "Adherence to best practices",
    "potential_bugs": "Potential bugs or edge cases",
    "performance": "Performance improvements"
  },
  "suggested_changes": [
    {
      "original_code": "Exact code snippet to be replaced",
      "improved_code": "Improved version of the code",
      "explanation": "Why this change improves the code"
    }
  ]
}

Every original_code snippet must appear verbatim in the file. Return an empty
suggested_changes list if the file needs no changes.

File content:
` + "```" + `{{.Language}}
{{.Content}}
` + "```" + `
`

var userTemplate = template.Must(template.New("analysis").Parse(userPrompt))

type promptData struct {
	Path        string
	Language    string
	Description string
	History     string
	Content     string
}

// BuildPrompt renders the analysis prompt for one file
func BuildPrompt(file types.CandidateFile, content, description, history string) (types.Prompt, error) {
	var buf bytes.Buffer
	err := userTemplate.Execute(&buf, promptData{
		Path:        file.Path,
		Language:    file.Language,
		Description: description,
		History:     history,
		Content:     content,
	})
	if err != nil {
		return types.Prompt{}, fmt.Errorf("failed to execute template: %w", err)
	}
	return types.Prompt{System: systemPrompt, User: buf.String()}, nil
}
