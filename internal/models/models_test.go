package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReconciliationState_IsValid(t *testing.T) {
	tests := []struct {
		state ReconciliationState
		valid bool
	}{
		{StatePending, true},
		{StateMatched, true},
		{StatePartial, true},
		{StateUnmatched, true},
		{StateManual, true},
		{"", false},
		{"done", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{ID: "tx1", ClientID: "c1", Date: MustDate("2024-03-01"), Amount: -1500}

	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr bool
	}{
		{"valid", func(tx *Transaction) {}, false},
		{"unset state allowed", func(tx *Transaction) { tx.ReconciliationState = "" }, false},
		{"missing id", func(tx *Transaction) { tx.ID = " " }, true},
		{"missing client", func(tx *Transaction) { tx.ClientID = "" }, true},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, true},
		{"bad state", func(tx *Transaction) { tx.ReconciliationState = "bogus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_Helpers(t *testing.T) {
	tx := &Transaction{Description: "  pago proveedor ", Amount: -2500}

	if tx.AbsAmount() != 2500 {
		t.Errorf("AbsAmount() = %d, want 2500", tx.AbsAmount())
	}
	if !tx.IsReconcilable() {
		t.Error("unset state should be reconcilable")
	}
	if tx.CounterpartyKey() != "PAGO PROVEEDOR" {
		t.Errorf("CounterpartyKey() = %q", tx.CounterpartyKey())
	}

	tx.NormalizedDescription = "PROVEEDOR SA"
	if tx.CounterpartyKey() != "PROVEEDOR SA" || tx.MatchText() != "PROVEEDOR SA" {
		t.Errorf("normalized description should win, got %q / %q", tx.CounterpartyKey(), tx.MatchText())
	}

	tx.ReconciliationState = StatePartial
	if tx.IsReconcilable() {
		t.Error("partial transactions are not picked up by the batch engine")
	}
}

func TestMatchRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  MatchRecord
		wantErr bool
	}{
		{
			name:   "auto matched",
			record: MatchRecord{ID: "m1", TransactionID: "tx1", DocumentID: "d1", State: StateMatched, Confidence: 0.85, Method: MethodAuto},
		},
		{
			name:   "unmatched without document",
			record: MatchRecord{ID: "m1", TransactionID: "tx1", State: StateUnmatched, Confidence: 0.1, Method: MethodAuto},
		},
		{
			name:    "matched without document",
			record:  MatchRecord{ID: "m1", TransactionID: "tx1", State: StateMatched, Confidence: 0.9, Method: MethodAuto},
			wantErr: true,
		},
		{
			name:    "manual below full confidence",
			record:  MatchRecord{ID: "m1", TransactionID: "tx1", DocumentID: "d1", State: StateMatched, Confidence: 0.9, Method: MethodManual},
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			record:  MatchRecord{ID: "m1", TransactionID: "tx1", State: StatePartial, Confidence: 1.2},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		a, b time.Time
		want int
	}{
		{MustDate("2024-01-10"), MustDate("2024-01-10"), 0},
		{MustDate("2024-01-10"), MustDate("2024-01-13"), 3},
		{MustDate("2024-01-13"), MustDate("2024-01-10"), 3},
		{MustDate("2024-02-28"), MustDate("2024-03-01"), 2},
		{time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC), time.Date(2024, 1, 11, 0, 1, 0, 0, time.UTC), 1},
	}

	for _, tt := range tests {
		if got := DaysBetween(tt.a, tt.b); got != tt.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"100.50", 10050, false},
		{"-1,250.00", -125000, false},
		{"$42", 4200, false},
		{"0.005", 1, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(-125050); got != "-1250.50" {
		t.Errorf("FormatAmount() = %q", got)
	}
	if got := FormatAmount(7); got != "0.07" {
		t.Errorf("FormatAmount() = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	for _, input := range []string{"2024-03-05", "2024-03-05T18:30:00Z", "05/03/2024", "20240305"} {
		got, err := ParseDate(input)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", input, err)
		}
		if !got.Equal(MustDate("2024-03-05")) {
			t.Errorf("ParseDate(%q) = %s", input, got)
		}
	}

	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestPeriodOf(t *testing.T) {
	if got := PeriodOf(MustDate("2024-11-30")); got != "2024-11" {
		t.Errorf("PeriodOf() = %q", got)
	}
}

func TestNormalizeDescription(t *testing.T) {
	if got := NormalizeDescription("  transf  a\tProveedor   SA "); got != "TRANSF A PROVEEDOR SA" {
		t.Errorf("NormalizeDescription() = %q", got)
	}
}

func TestTransaction_JSONDate(t *testing.T) {
	tx := &Transaction{ID: "tx1", ClientID: "c1", Date: MustDate("2024-03-01"), Amount: 100}
	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["date"] != "2024-03-01" {
		t.Errorf("expected calendar date, got %v", decoded["date"])
	}
	if decoded["amount"] != float64(100) {
		t.Errorf("expected minor-unit amount, got %v", decoded["amount"])
	}
}

func TestParseAlertState(t *testing.T) {
	state, err := ParseAlertState(" Dismissed ")
	if err != nil || state != AlertDismissed {
		t.Errorf("ParseAlertState() = %q, %v", state, err)
	}
	if _, err := ParseAlertState("closed"); err == nil {
		t.Error("expected error for unknown state")
	}
}
