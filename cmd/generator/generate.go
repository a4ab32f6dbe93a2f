package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

var (
	genSubject          string
	genTopic            string
	genCount            int
	genInput            string
	genOutput           string
	genSkipVerification bool
)

var errMissingAPIKey = errors.New("OPENAI_API_KEY non configurata. Impostala nel file .env o nell'ambiente")

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation and save the items",
	Long: `Generates questions for a subject, verifies them with a second model
pass and writes the accepted ones to the output file, replacing its content.

Example:
  generator generate -m Cardiologia -a "Fibrillazione atriale" -c 20 -i linee_guida.pdf`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genSubject, "subject", "m", "", "Subject, e.g. Cardiologia (required)")
	generateCmd.Flags().StringVarP(&genTopic, "topic", "a", "", "Topic within the subject (default: the subject)")
	generateCmd.Flags().IntVarP(&genCount, "count", "c", 10, "Number of questions to generate")
	generateCmd.Flags().StringVarP(&genInput, "input", "i", "", "Reference document (.txt or .pdf)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "domande_generate.jsonl", "Output JSONL file")
	generateCmd.Flags().BoolVar(&genSkipVerification, "skip-verification", false, "Skip the verification pass")

	_ = generateCmd.MarkFlagRequired("subject")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genCount < 1 {
		return fmt.Errorf("--count must be positive, got %d", genCount)
	}

	if cfg.LLM.APIKey == "" {
		return errMissingAPIKey
	}

	output := genOutput
	if !cmd.Flags().Changed("output") && cfg.Output.Path != "" {
		output = cfg.Output.Path
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := entities.RunRequest{
		Subject:          genSubject,
		Topic:            genTopic,
		Count:            genCount,
		ReferencePath:    genInput,
		SkipVerification: genSkipVerification,
		OutputPath:       output,
		WriteMode:        entities.WriteTruncate,
		APIKey:           cfg.LLM.APIKey,
	}

	summary, _, err := a.pipeline.Run(ctx, req, progressPrinter(cmd.ErrOrStderr()))
	if summary != nil {
		printSummary(cmd.OutOrStdout(), req, summary)
	}
	return err
}

// progressPrinter reports pipeline events on w, one line each.
func progressPrinter(w io.Writer) service.Observer {
	return func(e service.Event) {
		switch {
		case e.Err != nil:
			fmt.Fprintf(w, "  ! %s: %v\n", e.Message, e.Err)
		case e.Message != "":
			fmt.Fprintf(w, "  > %s\n", e.Message)
		}
	}
}

func printSummary(w io.Writer, req entities.RunRequest, s *entities.RunSummary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Materia:    %s\n", req.Subject)
	fmt.Fprintf(w, "Argomento:  %s\n", req.EffectiveTopic())
	fmt.Fprintf(w, "Richieste:  %d\n", s.Requested)
	fmt.Fprintf(w, "Generate:   %d\n", s.Generated)
	if s.Rejected > 0 {
		fmt.Fprintf(w, "Scartate:   %d\n", s.Rejected)
	}
	if s.Verified {
		fmt.Fprintf(w, "Escluse:    %d\n", s.Excluded)
	} else {
		fmt.Fprintln(w, "Verifica:   non eseguita")
	}
	fmt.Fprintf(w, "Salvate:    %d\n", s.Persisted)
	if s.Output != "" {
		fmt.Fprintf(w, "File:       %s\n", s.Output)
	}
	for _, f := range s.BatchFailures {
		fmt.Fprintf(w, "Batch %d fallito (%d domande): %s\n", f.Batch, f.Size, f.Error)
	}
}
