package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spellquest/vocab-api/internal/di"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
	"github.com/spellquest/vocab-api/internal/services"
)

func newIngestCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool
	var contentType string

	cmd := &cobra.Command{
		Use:   "ingest <image>",
		Short: "Scan one word sheet and save new vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()
			cfg, err := cmdCtx.ensureConfig(ctx)
			if err != nil {
				return err
			}

			upload, err := readImage(args[0], contentType)
			if err != nil {
				return err
			}

			container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger.Named("cli")))
			if err != nil {
				return err
			}
			defer func() {
				_ = container.Close(ctx)
			}()

			result, err := container.Services.Scan.Scan(ctx, upload)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderScanResult(result))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the image content type")
	return cmd
}

func readImage(path, contentType string) (ocr.Upload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		path = ""
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ocr.Upload{}, fmt.Errorf("read image: %w", err)
	}

	// Stdin has no name; the OCR client substitutes its defaults.
	var filename string
	contentType = strings.TrimSpace(contentType)
	if path != "" {
		filename = filepath.Base(path)
		if contentType == "" {
			contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		}
	}
	return ocr.Upload{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

type scanOutput struct {
	RunID      string            `json:"run_id"`
	Vocabulary []json.RawMessage `json:"vocabulary"`
	Created    []createdOutput   `json:"created"`
	Skipped    []statusOutput    `json:"skipped"`
	Errors     []statusOutput    `json:"errors"`
}

type createdOutput struct {
	ID      string `json:"id,omitempty"`
	English string `json:"english"`
	Chinese string `json:"chinese,omitempty"`
}

type statusOutput struct {
	English string `json:"english"`
	Detail  string `json:"detail"`
}

func writeJSON(w io.Writer, result services.ScanResult) error {
	out := scanOutput{
		RunID:      result.RunID,
		Vocabulary: result.Vocabulary,
		Created:    make([]createdOutput, 0, len(result.Saved.Created)),
		Skipped:    make([]statusOutput, 0, len(result.Saved.Skipped)),
		Errors:     make([]statusOutput, 0, len(result.Saved.Errors)),
	}
	for _, record := range result.Saved.Created {
		out.Created = append(out.Created, createdOutput{ID: record.ID, English: record.English, Chinese: record.Chinese})
	}
	for _, skipped := range result.Saved.Skipped {
		out.Skipped = append(out.Skipped, statusOutput{English: skipped.English, Detail: skipped.Reason})
	}
	for _, failed := range result.Saved.Errors {
		out.Errors = append(out.Errors, statusOutput{English: failed.English, Detail: failed.Error})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderScanResult(result services.ScanResult) string {
	rows := make([][]string, 0, result.Saved.Total())
	for _, record := range result.Saved.Created {
		rows = append(rows, []string{"created", record.English, record.Chinese, record.ID})
	}
	for _, skipped := range result.Saved.Skipped {
		rows = append(rows, []string{"skipped", skipped.English, "", skipped.Reason})
	}
	for _, failed := range result.Saved.Errors {
		rows = append(rows, []string{"error", failed.English, "", failed.Error})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d candidates, %d created, %d skipped, %d errors\n",
		result.RunID, len(result.Vocabulary), len(result.Saved.Created), len(result.Saved.Skipped), len(result.Saved.Errors))
	if len(rows) == 0 {
		b.WriteString("No vocabulary found.")
		return b.String()
	}
	b.WriteString(renderTable([]string{"Outcome", "English", "Chinese", "Detail"}, rows, nil))
	return b.String()
}
