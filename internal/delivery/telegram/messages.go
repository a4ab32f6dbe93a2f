// messages.go contains message templates and formatting functions for Telegram.

package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

const (
	msgHelp = "Comandi disponibili:\n\n" +
		"/genera Materia | Argomento | N: genera N domande (argomento e numero facoltativi)\n" +
		"/stato ID: mostra lo stato di una generazione"
	msgUseGenerate    = "Uso: /genera Materia | Argomento | N"
	msgInvalidCount   = "Numero di domande non valido. Inserisci un numero tra 1 e %d."
	msgUseStatus      = "Uso: /stato ID"
	msgRunNotFound    = "Generazione non trovata."
	msgNoItems        = "Nessuna domanda disponibile."
	msgRunBusy        = "C'è già una generazione in corso. Attendi che termini."
	msgNoAPIKey       = "API key non configurata sul server."
	msgCommandFailed  = "Il comando /%s non è riuscito. Riprova più tardi."
	msgUnknownCommand = "Comando sconosciuto.\n\n" + msgHelp
)

const previewPromptRunes = 80

// md escapes plain text for MarkdownV2.
func md(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

func bold(s string) string {
	return "*" + md(s) + "*"
}

// code wraps s in an inline code entity, where only ` and \ are escaped.
func code(s string) string {
	return "`" + codeEscaper.Replace(s) + "`"
}

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// newMessage creates a message with MarkdownV2 parse mode.
func newMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return msg
}

// newPlainMessage creates a plain message without MarkdownV2 parse mode.
func newPlainMessage(chatID int64, text string) tgbotapi.MessageConfig {
	return tgbotapi.NewMessage(chatID, text)
}

// SummaryMarkdownV2 renders the outcome of a finished run.
func SummaryMarkdownV2(subject, topic string, s entities.RunSummary) string {
	var sb strings.Builder

	sb.WriteString(bold("Generazione completata"))
	sb.WriteString("\n\n")
	sb.WriteString(md("Materia: " + subject))
	sb.WriteString("\n")
	if topic != "" && topic != subject {
		sb.WriteString(md("Argomento: " + topic))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "%s\n", md(fmt.Sprintf("Richieste: %d", s.Requested)))
	fmt.Fprintf(&sb, "%s\n", md(fmt.Sprintf("Generate: %d", s.Generated)))
	if s.Rejected > 0 {
		fmt.Fprintf(&sb, "%s\n", md(fmt.Sprintf("Scartate (struttura): %d", s.Rejected)))
	}
	if s.Verified {
		fmt.Fprintf(&sb, "%s\n", md(fmt.Sprintf("Escluse dalla verifica: %d", s.Excluded)))
	} else {
		sb.WriteString(md("Verifica non eseguita"))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%s\n", bold(fmt.Sprintf("Salvate: %d", s.Persisted)))

	if s.Output != "" {
		sb.WriteString(md("File: "))
		sb.WriteString(code(s.Output))
		sb.WriteString("\n")
	}

	if n := len(s.BatchFailures); n > 0 {
		sb.WriteString("\n")
		sb.WriteString(md(fmt.Sprintf("Batch falliti: %d", n)))
		sb.WriteString("\n")
		for _, f := range s.BatchFailures {
			sb.WriteString(md(fmt.Sprintf("• batch %d (%d domande): %s", f.Batch, f.Size, f.Error)))
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// StatusMarkdownV2 renders a run snapshot.
func StatusMarkdownV2(s service.RunStatus) string {
	var sb strings.Builder

	sb.WriteString(bold(s.Subject))
	sb.WriteString(" ")
	sb.WriteString(code(s.ID.String()))
	sb.WriteString("\n\n")

	state := "in corso"
	switch {
	case s.Stage == service.StageFailed:
		state = "fallita"
	case !s.Running:
		state = "completata"
	}
	sb.WriteString(md("Stato: " + state))
	sb.WriteString("\n")

	if s.Running && s.Batches > 0 {
		sb.WriteString(md(fmt.Sprintf("Batch %d/%d, %d domande pronte", s.Batch, s.Batches, s.Generated)))
		sb.WriteString("\n")
	}
	if s.Summary != nil {
		sb.WriteString(md(fmt.Sprintf("Salvate: %d su %d richieste", s.Summary.Persisted, s.Summary.Requested)))
		sb.WriteString("\n")
	}
	if len(s.Items) > 0 {
		sb.WriteString(md("Prima domanda: " + s.Items[0].Preview(previewPromptRunes)))
		sb.WriteString("\n")
	}
	if len(s.Errors) > 0 {
		sb.WriteString(md("Ultimo errore: " + s.Errors[len(s.Errors)-1]))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// RunStartedMarkdownV2 confirms a run launched from chat.
func RunStartedMarkdownV2(id, subject string, count int) string {
	return md(fmt.Sprintf("Generazione avviata: %d domande di %s.", count, subject)) +
		"\n" + md("ID: ") + code(id) + "\n" + md("Usa /stato "+id+" per seguirla.")
}
