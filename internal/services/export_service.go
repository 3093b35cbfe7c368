package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/xuri/excelize/v2"
)

// MaxExportRows caps a single export
const MaxExportRows = 10000

const exportSheet = "Webhooks"

var exportHeader = []string{
	"delivery_id", "repository", "event_type", "action", "pr_number", "sender",
	"status", "error_message", "duration_ms", "received_at",
}

type ExportService struct {
	metrics *MetricsService
}

func NewExportService(metrics *MetricsService) *ExportService {
	return &ExportService{metrics: metrics}
}

// Load returns the deliveries to export, newest first
func (s *ExportService) Load(ctx context.Context, filter models.WebhookFilter) ([]*models.WebhookEvent, error) {
	events, err := s.metrics.ExportWebhooks(ctx, filter, MaxExportRows)
	if err != nil {
		return nil, fmt.Errorf("load export rows: %w", err)
	}
	return events, nil
}

func exportRecord(e *models.WebhookEvent) []string {
	prNumber := ""
	if e.PRNumber != nil {
		prNumber = strconv.Itoa(*e.PRNumber)
	}
	return []string{
		e.DeliveryID, e.Repository, e.EventType, e.Action, prNumber, e.Sender,
		string(e.Status), e.ErrorMessage, strconv.FormatInt(e.DurationMs, 10),
		e.ReceivedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes events as CSV with a header row
func (s *ExportService) WriteCSV(w io.Writer, events []*models.WebhookEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write(exportRecord(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes events as a single-sheet workbook with a bold header row
func (s *ExportService) WriteXLSX(w io.Writer, events []*models.WebhookEvent) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, e := range events {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var prNumber interface{}
		if e.PRNumber != nil {
			prNumber = *e.PRNumber
		}
		row := []interface{}{
			e.DeliveryID, e.Repository, e.EventType, e.Action, prNumber, e.Sender,
			string(e.Status), e.ErrorMessage, e.DurationMs, e.ReceivedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
