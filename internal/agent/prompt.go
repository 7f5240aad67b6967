package agent

import (
	"strings"

	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

// SystemPrompt renders the instructions given to the model.
func SystemPrompt(defs []tools.Definition) string {
	var b strings.Builder
	b.WriteString("You are a GitHub CLI assistant that helps analyze GitHub activity.\n\nAvailable tools:\n")
	for _, d := range defs {
		b.WriteString("- ")
		b.WriteString(d.Name)
		b.WriteString(": ")
		b.WriteString(d.Description)
		b.WriteString("\n")
	}
	b.WriteString(`
Follow these rules:
1. Use the appropriate tool for each request
2. Only use real data from the tools
3. Present data clearly with verification links
4. If a tool returns an error, explain it to the user`)
	return b.String()
}
