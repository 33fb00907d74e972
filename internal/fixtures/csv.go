package fixtures

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"
)

// File names written by WriteCSV
const (
	TransactionsFile = "transactions.csv"
	DocumentsFile    = "documents.csv"
)

// WriteCSV writes the dataset into dir in the layout the CSV importers read,
// returning the two file paths
func (ds *Dataset) WriteCSV(dir string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", apperrors.FileError(apperrors.CodeFilePermission, dir, err)
	}

	txPath := filepath.Join(dir, TransactionsFile)
	txRows := [][]string{{"id", "client_id", "date", "description", "reference", "amount"}}
	for _, tx := range ds.Transactions {
		txRows = append(txRows, []string{
			tx.ID, tx.ClientID, models.FormatDate(tx.Date), tx.Description, tx.Reference, models.FormatAmount(tx.Amount),
		})
	}
	if err := writeRows(txPath, txRows); err != nil {
		return "", "", err
	}

	docPath := filepath.Join(dir, DocumentsFile)
	docRows := [][]string{{"id", "client_id", "issue_date", "total_amount", "issuer_tax_id", "issuer_name", "folio", "document_type"}}
	for _, doc := range ds.Documents {
		docRows = append(docRows, []string{
			doc.ID, doc.ClientID, models.FormatDate(doc.IssueDate), models.FormatAmount(doc.TotalAmount),
			doc.IssuerTaxID, doc.IssuerName, doc.Folio, doc.DocumentType,
		})
	}
	if err := writeRows(docPath, docRows); err != nil {
		return "", "", err
	}

	return txPath, docPath, nil
}

func writeRows(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.FileError(apperrors.CodeFilePermission, path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		return apperrors.FileError(apperrors.CodeFilePermission, path, err).
			WithSuggestion("check the output directory is writable and has free space")
	}
	return file.Close()
}
