package telegram

import (
	"fmt"
	"strings"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// ItemMarkdownV2 renders one accepted item with its options, the correct one marked.
func ItemMarkdownV2(item entities.GeneratedItem, index, total int) string {
	var sb strings.Builder

	sb.WriteString(bold(fmt.Sprintf("Domanda %d/%d", index+1, total)))
	sb.WriteString("\n")
	sb.WriteString(md(item.Subject))
	if item.Topic != "" && item.Topic != item.Subject {
		sb.WriteString(md(" · " + item.Topic))
	}
	sb.WriteString("\n\n")

	sb.WriteString(md(item.Prompt))
	sb.WriteString("\n\n")

	for _, opt := range item.Options {
		mark := "▫️"
		if opt.IsCorrect {
			mark = "✅"
		}
		sb.WriteString(md(fmt.Sprintf("%s %d. %s", mark, opt.ID, opt.Text)))
		sb.WriteString("\n")
	}

	if item.Explanation != "" {
		sb.WriteString("\n")
		sb.WriteString("_" + md(item.Explanation) + "_")
	}

	return strings.TrimRight(sb.String(), "\n")
}
