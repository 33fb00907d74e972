package parsers

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/aclindsa/ofxgo"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the closing bracket of a bare tag line
	unclosedTagPattern = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser reads bank movements from OFX/QFX statements
type OFXParser struct {
	clientID string
	logger   logger.Logger
}

// NewOFXParser creates an OFX parser that assigns every transaction to clientID
func NewOFXParser(clientID string) (*OFXParser, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingClient, "client_id", clientID, nil).
			WithSuggestion("OFX statements carry no client, pass one explicitly")
	}
	return &OFXParser{
		clientID: clientID,
		logger:   logger.GetGlobalLogger().WithComponent("ofx_parser"),
	}, nil
}

// ParseFile parses an OFX statement file
func (p *OFXParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.FileError(apperrors.CodeFileNotFound, filePath, err)
		}
		return nil, nil, apperrors.FileError(apperrors.CodeFilePermission, filePath, err)
	}
	defer file.Close()

	txs, stats, err := p.Parse(ctx, file)
	if err != nil {
		if rerr, ok := apperrors.AsReconcilerError(err); ok {
			return nil, stats, rerr.WithContext("file", filePath)
		}
		return nil, stats, err
	}
	return txs, stats, nil
}

// Parse reads every bank and credit card statement in r. Amounts keep the
// statement's sign, so debits are negative.
func (p *OFXParser) Parse(ctx context.Context, r io.Reader) ([]*models.Transaction, *ParseStats, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, apperrors.FileError(apperrors.CodeInvalidFormat, "", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, nil, apperrors.ParseError(apperrors.CodeInvalidFormat, "", 0, "ofx", "", err).
			WithSuggestion("Check the file is an OFX or QFX bank statement")
	}

	stats := NewParseStats()
	seen := make(map[string]bool)
	var out []*models.Transaction

	collect := func(account string, list *ofxgo.TransactionList) error {
		if list == nil {
			return nil
		}
		for i := range list.Transactions {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.RecordsParsed++
			tx, perr := p.convert(&list.Transactions[i], i+1)
			if perr == nil && seen[tx.ID] {
				perr = &ParseError{Line: i + 1, Field: "FITID", Value: tx.ID, Message: "duplicate id"}
			}
			if perr != nil {
				stats.AddError(perr)
				continue
			}
			seen[tx.ID] = true
			out = append(out, tx)
			stats.RecordsValid++
		}
		p.logger.WithFields(logger.Fields{
			"account":      account,
			"transactions": len(list.Transactions),
		}).Debug("Read OFX statement")
		return nil
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			if err := collect(string(stmt.BankAcctFrom.AcctID), stmt.BankTranList); err != nil {
				return out, stats, err
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			if err := collect(string(stmt.CCAcctFrom.AcctID), stmt.BankTranList); err != nil {
				return out, stats, err
			}
		}
	}

	stats.TotalLines = stats.RecordsParsed
	p.logger.WithFields(logger.Fields{
		"client_id":      p.clientID,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("OFX parsing completed")
	return out, stats, nil
}

func (p *OFXParser) convert(in *ofxgo.Transaction, position int) (*models.Transaction, *ParseError) {
	id := strings.TrimSpace(string(in.FiTID))
	if id == "" {
		return nil, &ParseError{Line: position, Field: "FITID", Message: "value is required"}
	}

	raw := in.TrnAmt.FloatString(models.MinorUnitExponent)
	amount, err := models.ParseAmount(raw)
	if err != nil {
		return nil, &ParseError{Line: position, Field: "TRNAMT", Value: raw, Message: "invalid amount", Err: err}
	}

	description := ofxDescription(in)
	reference := string(in.CheckNum)
	if reference == "" {
		reference = string(in.RefNum)
	}

	tx := &models.Transaction{
		ID:                    id,
		ClientID:              p.clientID,
		Date:                  models.TruncateDate(in.DtPosted.Time),
		Description:           description,
		NormalizedDescription: models.NormalizeDescription(description),
		Reference:             reference,
		Amount:                amount,
		Category:              ofxCategory(in.TrnType.String()),
		ReconciliationState:   models.StatePending,
	}
	if err := tx.Validate(); err != nil {
		return nil, &ParseError{Line: position, Field: "transaction", Value: id, Message: "invalid transaction", Err: err}
	}
	return tx, nil
}

// ofxDescription prefers NAME, then the payee, then MEMO
func ofxDescription(in *ofxgo.Transaction) string {
	name := strings.TrimSpace(string(in.Name))
	if name == "" && in.Payee != nil {
		name = strings.TrimSpace(string(in.Payee.Name))
	}
	if name == "" {
		name = strings.TrimSpace(string(in.Memo))
	}
	return name
}

// ofxCategory maps an OFX TRNTYPE name onto a transaction category
func ofxCategory(trnType string) string {
	switch strings.ToUpper(strings.TrimSpace(trnType)) {
	case "INT":
		return "interest"
	case "FEE", "SRVCHG":
		return "bank fees"
	case "ATM":
		return "cash"
	}
	return ""
}

// preprocessOFX repairs formatting slips common in bank exports that the
// strict OFX reader rejects
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTagPattern.ReplaceAllString(content, "$1>")
}

func (p *OFXParser) String() string {
	return fmt.Sprintf("OFXParser{client: %s}", p.clientID)
}
