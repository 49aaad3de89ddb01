// Package report renders batch output for humans and downstream
// tooling: a CSV sheet with one row per inquiry and a JSON summary of
// the batch stats.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tripdesk/tripdesk/internal/model"
	"github.com/tripdesk/tripdesk/internal/pipeline"
)

var csvHeader = []string{
	"file_name", "status", "customer_name", "travel_dates", "destination",
	"budget", "travelers_count", "contact_info", "special_requirements",
	"name_method", "destination_method", "dates_method", "budget_method",
	"travelers_method", "contact_method", "confidence_score", "error",
}

// WriteCSV renders one row per inquiry result.
func WriteCSV(w io.Writer, results []model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.SourceID,
			string(r.Status),
			r.Fused.CustomerName,
			r.Fused.TravelDates,
			r.Fused.Destination,
			r.Fused.Budget,
			r.Fused.TravelersCount,
			r.Fused.ContactInfo,
			r.Fused.SpecialRequirements,
			string(r.Fused.Methods.Names),
			string(r.Fused.Methods.Destinations),
			string(r.Fused.Methods.Dates),
			string(r.Fused.Methods.Budget),
			string(r.Fused.Methods.TravelerCount),
			string(r.Fused.Methods.Contact),
			strconv.FormatFloat(r.Fused.Confidence, 'f', 3, 64),
			r.StatusError,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row for %s: %w", r.SourceID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary renders the batch stats as indented JSON.
func WriteSummary(w io.Writer, stats pipeline.BatchStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// SaveBatch writes the CSV sheet and JSON summary to the given paths.
// Either path may be empty to skip that artifact.
func SaveBatch(report pipeline.BatchReport, csvPath, summaryPath string) error {
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", csvPath, err)
		}
		defer f.Close()
		if err := WriteCSV(f, report.Results); err != nil {
			return err
		}
	}
	if summaryPath != "" {
		f, err := os.Create(summaryPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", summaryPath, err)
		}
		defer f.Close()
		if err := WriteSummary(f, report.Stats); err != nil {
			return err
		}
	}
	return nil
}
