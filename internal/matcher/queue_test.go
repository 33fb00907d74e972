package matcher

import (
	"reflect"
	"testing"

	"golang-reconciliation-engine/internal/models"
)

func TestAmountQueue_Order(t *testing.T) {
	txs := []*models.Transaction{
		{ID: "small", Amount: -100, Date: models.MustDate("2024-01-01")},
		{ID: "big-late", Amount: 5000, Date: models.MustDate("2024-01-09")},
		{ID: "big-early-b", Amount: -5000, Date: models.MustDate("2024-01-02")},
		{ID: "big-early-a", Amount: 5000, Date: models.MustDate("2024-01-02")},
		{ID: "mid", Amount: 2500, Date: models.MustDate("2024-01-01")},
	}

	q := NewAmountQueue(txs)
	if q.Len() != len(txs) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(txs))
	}

	var got []string
	for _, tx := range q.Drain() {
		got = append(got, tx.ID)
	}
	want := []string{"big-early-a", "big-early-b", "big-late", "mid", "small"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	if txs[0].ID != "small" {
		t.Error("queue must not reorder the caller's slice")
	}
	if q.Pop() != nil {
		t.Error("Pop on an empty queue should return nil")
	}
}

func TestAmountQueue_Push(t *testing.T) {
	q := NewAmountQueue(nil)
	q.Push(&models.Transaction{ID: "a", Amount: 10})
	q.Push(&models.Transaction{ID: "b", Amount: -30})
	q.Push(&models.Transaction{ID: "c", Amount: 20})

	if tx := q.Pop(); tx.ID != "b" {
		t.Errorf("expected largest |amount| first, got %s", tx.ID)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"pago arriendo oficina central", "PAGO ARRIENDO OFICINA"},
		{"TEF a de la SERVIPAG sa", "TEF SERVIPAG"},
		{"  luz   enel  ", "LUZ ENEL"},
		{"a b c", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := Fingerprint(tt.description); got != tt.want {
				t.Errorf("Fingerprint(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestExtractTaxID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"TRANSF 76.123.456-K PROVEEDOR", "76.123.456-K"},
		{"pago rut 12345678-9", "12345678-9"},
		{"RUT 7654321k ok", "7654321k"},
		{"ref 123456", ""},
		{"no id here 2024", ""},
	}

	for _, tt := range tests {
		if got := ExtractTaxID(tt.input); got != tt.want {
			t.Errorf("ExtractTaxID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeTaxID(t *testing.T) {
	if got := NormalizeTaxID(" 76.123.456-k "); got != "76123456K" {
		t.Errorf("NormalizeTaxID() = %q", got)
	}
}
