package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/phpdave11/gofpdf"
)

const statementEntries = 200

// StatementService renders wallet statements as PDF.
type StatementService struct {
	ledger *LedgerService
	now    func() time.Time
}

func NewStatementService(ledger *LedgerService) *StatementService {
	return &StatementService{ledger: ledger, now: time.Now}
}

func (s *StatementService) WalletStatement(ctx context.Context, userID string) ([]byte, error) {
	wallet, err := s.ledger.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListJournal(ctx, userID, statementEntries)
	if err != nil {
		return nil, err
	}
	return buildStatementPDF(wallet, entries, s.now())
}

func buildStatementPDF(w *models.Wallet, entries []models.JournalEntry, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Wallet Statement", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "WALLET STATEMENT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		"Account      : " + w.UserID,
		"Generated    : " + generated.UTC().Format("2006-01-02 15:04 MST"),
		"Held         : " + FormatMinor(w.LedgerBalance, w.Currency),
		"Available    : " + FormatMinor(w.AvailableBalance, w.Currency),
		"Pending out  : " + FormatMinor(w.PendingWithdrawals, w.Currency),
		"Total earned : " + FormatMinor(w.TotalEarnings, w.Currency),
		"Withdrawn    : " + FormatMinor(w.TotalWithdrawn, w.Currency),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(38, 7, "Date", "B", 0, "", false, 0, "")
	pdf.CellFormat(42, 7, "Operation", "B", 0, "", false, 0, "")
	pdf.CellFormat(36, 7, "Amount", "B", 0, "R", false, 0, "")
	pdf.CellFormat(36, 7, "Held after", "B", 0, "R", false, 0, "")
	pdf.CellFormat(36, 7, "Available after", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	if len(entries) == 0 {
		pdf.Ln(2)
		pdf.Cell(0, 6, "No transactions.")
		pdf.Ln(6)
	}
	for _, e := range entries {
		pdf.CellFormat(38, 6, e.CreatedAt.UTC().Format("2006-01-02 15:04"), "", 0, "", false, 0, "")
		pdf.CellFormat(42, 6, string(e.Operation), "", 0, "", false, 0, "")
		pdf.CellFormat(36, 6, FormatMinor(e.Amount, e.Currency), "", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, FormatMinor(e.LedgerBalanceAfter, e.Currency), "", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, FormatMinor(e.AvailableBalanceAfter, e.Currency), "", 1, "R", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, fmt.Sprintf("Showing up to %d most recent entries. Held funds become available once the client releases them or the booking auto-releases.", statementEntries), "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
