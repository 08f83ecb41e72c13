package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"salon-pos/internal/pricing"
)

const (
	saleSheet  = "Sale"
	salesSheet = "Sales"
)

// ExportSaleToExcel renders a single sale as a workbook.
func ExportSaleToExcel(sale Sale) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", saleSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	rows := [][]any{
		{"Sale ID", sale.ID},
		{"Created At", sale.CreatedAt.Format("2006-01-02 15:04")},
		{"Client", sale.ClientName},
		{"Phone", sale.ClientPhone},
		{"Master", sale.MasterID},
		{"Subscription", sale.SubscriptionTitle},
		{"Subscription ID", sale.SubscriptionTypeID},
		{"Package", string(sale.Package)},
		{"Base Cost", sale.BaseCost},
		{"Final Cost", sale.FinalCost},
		{"Savings", sale.TotalSavings},
		{"Down Payment", sale.DownPayment},
		{"Installment Months", sale.InstallmentMonths},
		{"Monthly Payment", sale.MonthlyPayment},
	}
	for i, r := range rows {
		if err := f.SetSheetRow(saleSheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	next := len(rows) + 2
	if err := f.SetSheetRow(saleSheet, fmt.Sprintf("A%d", next), &[]any{"Discount", "Amount"}); err != nil {
		return nil, fmt.Errorf("failed to write discounts header: %w", err)
	}
	for _, d := range sale.AppliedDiscounts.V {
		next++
		if err := f.SetSheetRow(saleSheet, fmt.Sprintf("A%d", next), &[]any{string(d.Type), d.Amount}); err != nil {
			return nil, fmt.Errorf("failed to write discount: %w", err)
		}
	}

	next += 2
	header := []any{"Service", "External ID", "Unit Price", "Quantity", "Sessions", "Free"}
	if err := f.SetSheetRow(saleSheet, fmt.Sprintf("A%d", next), &header); err != nil {
		return nil, fmt.Errorf("failed to write services header: %w", err)
	}
	for _, svc := range sale.Services.V {
		next++
		row := []any{svc.Title, svc.ExternalID, svc.UnitPrice, svc.Quantity, svc.SessionCount, yesNo(svc.IsFreeZone)}
		if err := f.SetSheetRow(saleSheet, fmt.Sprintf("A%d", next), &row); err != nil {
			return nil, fmt.Errorf("failed to write service: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(saleSheet, "A1", fmt.Sprintf("A%d", len(rows)), style); err != nil {
		return nil, fmt.Errorf("failed to style sheet: %w", err)
	}
	_ = f.SetColWidth(saleSheet, "A", "A", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

var salesHeaders = []string{
	"ID", "Created At", "Client", "Phone", "Master", "Subscription",
	"Package", "Base Cost", "Final Cost", "Savings", "Down Payment",
	"Months", "Monthly Payment", "Certificate", "Correction %", "Discounts",
}

// ExportSalesToExcel renders the sales register.
func ExportSalesToExcel(sales []Sale) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", salesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	for col, header := range salesHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(salesSheet, cell, header)
	}

	for row, sale := range sales {
		data := []any{
			sale.ID,
			sale.CreatedAt.Format("2006-01-02 15:04"),
			sale.ClientName,
			sale.ClientPhone,
			sale.MasterID,
			sale.SubscriptionTitle,
			string(sale.Package),
			sale.BaseCost,
			sale.FinalCost,
			sale.TotalSavings,
			sale.DownPayment,
			sale.InstallmentMonths,
			sale.MonthlyPayment,
			yesNo(sale.UsedCertificate),
			sale.CorrectionPercent,
			discountsSummary(sale.AppliedDiscounts.V),
		}
		for col, value := range data {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(salesSheet, cell, value)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(salesHeaders), 1)
		_ = f.SetCellStyle(salesSheet, "A1", last, style)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportSales loads every sale and renders the register.
func (s *PostgresStorage) ExportSales(ctx context.Context) ([]byte, error) {
	const operation = "storage.ExportSales"

	sales, err := s.ListSales(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	data, err := ExportSalesToExcel(sales)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return data, nil
}

func discountsSummary(discounts []pricing.AppliedDiscount) string {
	parts := make([]string, 0, len(discounts))
	for _, d := range discounts {
		parts = append(parts, fmt.Sprintf("%s=%d", d.Type, d.Amount))
	}
	return strings.Join(parts, "; ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
