// Package prompts builds the instructions sent to the completion endpoint.
package prompts

import (
	"fmt"
	"strings"
)

// DefaultReferenceLimit is the number of reference characters embedded in a prompt.
const DefaultReferenceLimit = 8000

const (
	// GenerationSystem fixes language, domain and output format of generation calls.
	GenerationSystem = "Sei un generatore di domande mediche per il concorso SSM. Rispondi sempre e solo con un array JSON valido."
	// VerificationSystem fixes language, domain and output format of verification calls.
	VerificationSystem = "Sei un revisore esperto di domande mediche per il concorso SSM. Rispondi sempre e solo con un array JSON valido."
)

// Generation describes one batch request.
type Generation struct {
	Subject        string
	Topic          string
	Count          int
	ReferenceText  string // optional grounding material
	ReferenceLimit int    // characters of ReferenceText kept, DefaultReferenceLimit when zero
}

// Build returns the user prompt for a generation batch.
func (g Generation) Build() string {
	var sb strings.Builder

	sb.WriteString("Sei un esperto di medicina e devi scrivere domande a risposta multipla per il concorso SSM (Scuole di Specializzazione in Medicina).\n\n")
	fmt.Fprintf(&sb, "MATERIA: %s\n", g.Subject)
	fmt.Fprintf(&sb, "ARGOMENTO: %s\n", g.Topic)
	fmt.Fprintf(&sb, "NUMERO DOMANDE: %d\n\n", g.Count)

	sb.WriteString(g.context())
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Scrivi esattamente %d domande rispettando queste regole:\n", g.Count)
	sb.WriteString("1. ogni domanda ha ESATTAMENTE 5 opzioni di risposta;\n")
	sb.WriteString("2. una sola opzione è corretta (isCorrect: true);\n")
	sb.WriteString("3. i distrattori sono plausibili e ben formulati;\n")
	sb.WriteString("4. la spiegazione chiarisce perché l'opzione corretta è giusta;\n")
	sb.WriteString("5. il livello è adeguato al concorso SSM.\n\n")

	sb.WriteString("FORMATO: un array JSON con oggetti di questa forma esatta:\n")
	fmt.Fprintf(&sb, `[
  {
    "subject": %q,
    "topic": %q,
    "prompt": "Testo della domanda?",
    "hasImage": false,
    "imageRef": null,
    "options": [
      {"id": 1, "text": "Prima opzione", "isCorrect": false},
      {"id": 2, "text": "Seconda opzione", "isCorrect": true},
      {"id": 3, "text": "Terza opzione", "isCorrect": false},
      {"id": 4, "text": "Quarta opzione", "isCorrect": false},
      {"id": 5, "text": "Quinta opzione", "isCorrect": false}
    ],
    "correctAnswerText": "Seconda opzione",
    "explanation": "Spiegazione del perché la risposta è corretta"
  }
]`, g.Subject, g.Topic)
	sb.WriteString("\n\nIMPORTANTE:\n")
	sb.WriteString("- rispondi SOLO con l'array JSON, senza testo aggiuntivo;\n")
	sb.WriteString("- correctAnswerText deve coincidere con il testo dell'opzione con isCorrect: true.\n")

	return sb.String()
}

func (g Generation) context() string {
	if strings.TrimSpace(g.ReferenceText) == "" {
		return "Basati sulle tue conoscenze mediche aggiornate."
	}

	limit := g.ReferenceLimit
	if limit <= 0 {
		limit = DefaultReferenceLimit
	}

	return "TESTO DI RIFERIMENTO:\n---\n" + Excerpt(g.ReferenceText, limit) + "\n---\n\nUsa il testo sopra come base per domande pertinenti e accurate."
}

// Excerpt returns the first limit characters of text.
func Excerpt(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}

// Verification returns the user prompt asking for one judgment per item.
// itemsJSON is the serialised list of items under review.
func Verification(itemsJSON string) string {
	var sb strings.Builder

	sb.WriteString("Sei un revisore esperto di domande mediche per il concorso SSM.\n\n")
	sb.WriteString("Per ciascuna domanda verifica:\n")
	sb.WriteString("1. la correttezza medico-scientifica dell'opzione indicata come corretta;\n")
	sb.WriteString("2. che i distrattori siano davvero errati ma plausibili;\n")
	sb.WriteString("3. che la spiegazione sia accurata e utile;\n")
	sb.WriteString("4. che la domanda sia formulata in modo chiaro.\n\n")
	sb.WriteString("Per ogni domanda produci un oggetto JSON:\n")
	sb.WriteString(`{
  "itemIndex": <posizione della domanda nell'elenco, a partire da 0>,
  "isValid": true/false,
  "issues": ["problemi riscontrati se non valida"],
  "suggestedFix": "suggerimento facoltativo di correzione"
}`)
	sb.WriteString("\n\nDOMANDE DA VERIFICARE:\n")
	sb.WriteString(itemsJSON)
	sb.WriteString("\n\nRispondi con un array JSON contenente una verifica per ogni domanda.\n")
	sb.WriteString("IMPORTANTE: rispondi SOLO con l'array JSON, senza testo aggiuntivo.\n")

	return sb.String()
}
