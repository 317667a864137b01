// Package pdf renders the printable artifacts: payment receipts for jamaah
// and payout summaries for the finance desk.
package pdf

import (
	"bytes"
	"fmt"
	"time"

	"umrah-backend/internal/models"

	"github.com/jung-kurt/gofpdf/v2"
)

// ReceiptData holds everything the payment receipt shows.
type ReceiptData struct {
	Payment    *models.Payment
	Jamaah     *models.Jamaah
	Schedule   *models.PaymentSchedule
	AgencyName string
}

// GenerateReceipt renders an A4 payment receipt.
func GenerateReceipt(data *ReceiptData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	title := data.AgencyName
	if title == "" {
		title = "Payment Receipt"
	}
	pdf.CellFormat(190, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Receipt %s", data.Payment.ReceiptNumber), "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", time.Now().Format("02-Jan-2006 03:04 PM")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Jamaah Info Box
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Jamaah Information", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, fmt.Sprintf("Name: %s", data.Jamaah.FullName), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Package: %d", data.Jamaah.PackageID), "RB", 1, "L", false, 0, "")
	pdf.Ln(5)

	// Payment details
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Payment Details", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	rows := [][2]string{
		{"Amount", data.Payment.Amount.String()},
		{"Method", data.Payment.Method},
		{"Type", string(data.Payment.Type)},
		{"Status", string(data.Payment.Status)},
		{"Payment Date", data.Payment.PaymentDate.Format("02-Jan-2006")},
	}
	if data.Payment.ReferenceNumber != "" {
		rows = append(rows, [2]string{"Reference", data.Payment.ReferenceNumber})
	}
	for _, row := range rows {
		pdf.CellFormat(60, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(130, 7, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(5)

	// Installment settled by this payment, if any
	if data.Schedule != nil {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(190, 8, "Installment Settled", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(95, 7, fmt.Sprintf("Installment #%d", data.Schedule.InstallmentNumber), "LB", 0, "L", false, 0, "")
		pdf.CellFormat(95, 7, fmt.Sprintf("Due: %s", data.Schedule.DueDate.Format("02-Jan-2006")), "RB", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// GeneratePayoutSummary renders the per-agent transfer sheet for a payout
// batch.
func GeneratePayoutSummary(payout *models.CommissionPayout) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "Commission Payout Summary", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Batch %s - as of %s", payout.BatchNumber, payout.AsOfDate.Format("02-Jan-2006")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Table header
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(20, 7, "Agent", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Bank", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Account No", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Account Name", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 7, "Amount", "1", 0, "C", true, 0, "")
	pdf.CellFormat(15, 7, "Status", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, item := range payout.Items {
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", item.AgentID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, item.BankName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, item.BankAccountNo, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, item.BankAccountName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, item.Amount.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(15, 7, string(item.Status), "1", 1, "C", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(150, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, payout.TotalAmount.String(), "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render payout summary: %w", err)
	}
	return buf.Bytes(), nil
}
