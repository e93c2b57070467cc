// Package audible reads in-progress audiobooks from the `audible` CLI's
// TSV library export. No browser involved; authentication is delegated
// to `audible quickstart`.
package audible

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/models"
)

// DefaultExportPath is where the library export lands when the config
// does not override it.
const DefaultExportPath = "./data/library.tsv"

// Library exports and parses the Audible library for one profile.
type Library struct {
	exportPath string
	log        *logger.Logger
}

// NewLibrary creates a Library writing its export to exportPath.
func NewLibrary(exportPath string, log *logger.Logger) *Library {
	if exportPath == "" {
		exportPath = DefaultExportPath
	}
	return &Library{exportPath: exportPath, log: log}
}

// Export shells out to the audible CLI to refresh the TSV export. A
// failure is treated as missing authentication, which is fatal for the
// run and carries its remediation with it.
func (l *Library) Export(ctx context.Context) error {
	l.log.Info("Exporting Audible library", map[string]interface{}{
		"output": l.exportPath,
	})

	cmd := exec.CommandContext(ctx, "audible", "library", "export", "--output", l.exportPath)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return &browser.AuthenticationError{
			Service:     "Audible",
			Reason:      fmt.Sprintf("library export failed: %v", err),
			Remediation: "run `audible quickstart` once, then re-run the sync",
		}
	}

	return nil
}

// InProgress parses the export and returns books that are neither
// finished nor untouched, i.e. the ones worth syncing.
func (l *Library) InProgress() ([]models.BookRecord, error) {
	f, err := os.Open(l.exportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open library export %q: %w", l.exportPath, err)
	}
	defer f.Close()

	books, err := parseExport(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse library export %q: %w", l.exportPath, err)
	}

	l.log.Info("In-progress audiobooks found", map[string]interface{}{
		"count": len(books),
	})
	return books, nil
}

// parseExport reads the tab-separated export and keeps rows with
// 0 < percent and is_finished false.
func parseExport(r io.Reader) ([]models.BookRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"title", "percent_complete", "is_finished"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("export is missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var books []models.BookRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export row: %w", err)
		}

		isFinished := strings.EqualFold(field(row, "is_finished"), "true")
		percent, _ := strconv.ParseFloat(field(row, "percent_complete"), 64)
		if isFinished || percent <= 0 {
			continue
		}

		record, err := models.NewBookRecord(field(row, "asin"), field(row, "title"), field(row, "authors"))
		if err != nil {
			continue // rows without a title are useless downstream
		}
		record.PercentComplete = percent
		record.Status = "currently reading"
		if runtime := field(row, "runtime_length_min"); runtime != "" {
			if minutes, err := strconv.ParseFloat(runtime, 64); err == nil {
				record.RuntimeMinutes = int(minutes)
			}
		}

		books = append(books, record)
	}

	return books, nil
}
