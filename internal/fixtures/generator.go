// Package fixtures generates synthetic client datasets: bank transactions,
// the tax documents that justify some of them, and planted anomalies. The
// output is deterministic for a given seed, so datasets can be regenerated
// for benchmarks and demos instead of being checked in.
package fixtures

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// Options controls dataset generation
type Options struct {
	ClientID string
	Count    int
	Start    time.Time
	End      time.Time

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// MatchRatio is the share of transactions that get a document with the
	// same amount, issue date and issuer
	MatchRatio float64
	// DuplicateRatio is the share of debits posted a second time a day later
	DuplicateRatio float64
	// OutlierRatio is the share of transactions whose amount is inflated
	// by OutlierFactor
	OutlierRatio  float64
	OutlierFactor int64

	Seed int64
}

// DefaultOptions returns options for a month of mixed activity
func DefaultOptions(clientID string) Options {
	return Options{
		ClientID:       clientID,
		Count:          200,
		Start:          models.MustDate("2024-03-01"),
		End:            models.MustDate("2024-03-31"),
		MinAmount:      decimal.NewFromInt(5),
		MaxAmount:      decimal.NewFromInt(2500),
		MatchRatio:     0.8,
		DuplicateRatio: 0.02,
		OutlierRatio:   0.01,
		OutlierFactor:  40,
		Seed:           1,
	}
}

// Validate checks the options are usable
func (o Options) Validate() error {
	switch {
	case strings.TrimSpace(o.ClientID) == "":
		return apperrors.ValidationError(apperrors.CodeMissingClient, "client_id", o.ClientID, nil)
	case o.Count <= 0:
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "count", o.Count, nil)
	case o.End.Before(o.Start):
		return apperrors.ValidationError(apperrors.CodeInvalidDate, "end", models.FormatDate(o.End), nil).
			WithSuggestion("the end date must not be before the start date")
	case !o.MinAmount.IsPositive() || o.MaxAmount.LessThan(o.MinAmount):
		return apperrors.ValidationError(apperrors.CodeInvalidAmount, "amount_range",
			fmt.Sprintf("%s..%s", o.MinAmount, o.MaxAmount), nil)
	}
	for name, ratio := range map[string]float64{
		"match_ratio":     o.MatchRatio,
		"duplicate_ratio": o.DuplicateRatio,
		"outlier_ratio":   o.OutlierRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return apperrors.ValidationError(apperrors.CodeInvalidValue, name, ratio, nil).
				WithSuggestion("ratios must be between 0 and 1")
		}
	}
	if o.OutlierRatio > 0 && o.OutlierFactor < 2 {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "outlier_factor", o.OutlierFactor, nil)
	}
	return nil
}

// Dataset is one generated client dataset
type Dataset struct {
	Transactions []*models.Transaction
	Documents    []*models.Document

	// Planted anomalies, by transaction ID
	Duplicates []string
	Outliers   []string
}

var issuers = []struct {
	name  string
	taxID string
}{
	{"COMERCIAL ANDES LTDA", "76.123.456-7"},
	{"DISTRIBUIDORA SUR SPA", "77.234.567-8"},
	{"SERVICIOS PACIFICO SA", "78.345.678-9"},
	{"LOGISTICA NORTE LTDA", "79.456.789-K"},
	{"TECNOLOGIA AUSTRAL SPA", "80.567.890-1"},
	{"INMOBILIARIA CENTRO SA", "81.678.901-2"},
}

var unmatchedDescriptions = []string{
	"COMISION MANTENCION",
	"TRASPASO ENTRE CUENTAS",
	"INTERESES LINEA CREDITO",
	"ABONO DEPOSITO EFECTIVO",
	"GIRO CAJERO AUTOMATICO",
}

// Generate builds a dataset. Every transaction amount is distinct in
// absolute value, so the only repeated amounts are the planted duplicates.
func Generate(opts Options) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g := &generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		used: make(map[int64]bool, opts.Count),
		days: models.DaysBetween(opts.Start, opts.End),
	}
	return g.run(), nil
}

type generator struct {
	opts Options
	rng  *rand.Rand
	used map[int64]bool
	days int
}

func (g *generator) run() *Dataset {
	ds := &Dataset{}
	for i := 1; i <= g.opts.Count; i++ {
		id := fmt.Sprintf("%s-tx-%05d", g.opts.ClientID, i)
		date := g.opts.Start.AddDate(0, 0, g.rng.Intn(g.days+1))
		amount := g.amount()

		if g.rng.Float64() < g.opts.OutlierRatio {
			amount = g.unique(amount * g.opts.OutlierFactor)
			ds.Outliers = append(ds.Outliers, id)
		}
		// debits outnumber credits on an operating account
		if g.rng.Float64() < 0.7 {
			amount = -amount
		}

		tx := &models.Transaction{
			ID:       id,
			ClientID: g.opts.ClientID,
			Date:     date,
			Amount:   amount,
		}

		if g.rng.Float64() < g.opts.MatchRatio {
			issuer := issuers[g.rng.Intn(len(issuers))]
			folio := fmt.Sprintf("F-%06d", 100000+i)
			tx.Description = "PAGO " + issuer.name
			ds.Documents = append(ds.Documents, &models.Document{
				ID:           fmt.Sprintf("%s-doc-%05d", g.opts.ClientID, i),
				ClientID:     g.opts.ClientID,
				IssueDate:    date,
				TotalAmount:  models.AbsAmount(amount),
				IssuerTaxID:  issuer.taxID,
				IssuerName:   issuer.name,
				Folio:        folio,
				DocumentType: "invoice",
			})
		} else {
			tx.Description = unmatchedDescriptions[g.rng.Intn(len(unmatchedDescriptions))]
		}
		tx.NormalizedDescription = models.NormalizeDescription(tx.Description)
		ds.Transactions = append(ds.Transactions, tx)

		if amount < 0 && g.rng.Float64() < g.opts.DuplicateRatio {
			dup := *tx
			dup.ID = id + "-dup"
			dup.Date = date.AddDate(0, 0, 1)
			ds.Transactions = append(ds.Transactions, &dup)
			ds.Duplicates = append(ds.Duplicates, dup.ID)
		}
	}
	return ds
}

// amount draws a positive amount in minor units from the configured range
func (g *generator) amount() int64 {
	span := g.opts.MaxAmount.Sub(g.opts.MinAmount)
	d := decimal.NewFromFloat(g.rng.Float64()).Mul(span).Add(g.opts.MinAmount).Round(models.MinorUnitExponent)
	return g.unique(models.AmountFromDecimal(d))
}

// unique nudges amount up one minor unit at a time until it is unused
func (g *generator) unique(amount int64) int64 {
	if amount < 1 {
		amount = 1
	}
	for g.used[amount] {
		amount++
	}
	g.used[amount] = true
	return amount
}
