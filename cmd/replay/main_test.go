package main

import (
	"strings"
	"testing"
)

func TestReadRows(t *testing.T) {
	data := `step,type,amount,isFraud
1,PAYMENT,9839.64,0
1,CASH_IN,181.00,1
1,UNKNOWN,10,0
1,TRANSFER,abc,0
1,TRANSFER,150000,1
`
	rows, skipped, err := readRows(strings.NewReader(data), 0)
	if err != nil {
		t.Fatalf("readRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", skipped)
	}
	if rows[1].Type != "refund" || !rows[1].IsFraud {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
	if rows[2].Line != 6 || rows[2].Amount.String() != "150000" {
		t.Errorf("unexpected last row: %+v", rows[2])
	}
}

func TestReadRowsLimitAndNativeColumns(t *testing.T) {
	data := `transactionType,amount,supplierId
refund,60000,sup-1
payment,10,
adjustment,5,
`
	rows, _, err := readRows(strings.NewReader(data), 2)
	if err != nil {
		t.Fatalf("readRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit of 2 rows, got %d", len(rows))
	}
	if rows[0].SupplierID != "sup-1" || rows[0].IsFraud {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
}

func TestReadRowsRequiresColumns(t *testing.T) {
	if _, _, err := readRows(strings.NewReader("foo,bar\n1,2\n"), 0); err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestTallyRecord(t *testing.T) {
	tally := &Tally{}

	flagged := &submitResponse{}
	flagged.Record.Label = "fraudulent"
	flagged.Record.IsSuspicious = true
	clean := &submitResponse{}
	clean.Record.Label = "normal"

	tally.record(Row{IsFraud: true}, flagged)
	tally.record(Row{IsFraud: false}, flagged)
	tally.record(Row{IsFraud: true}, clean)
	tally.record(Row{IsFraud: false}, clean)

	if tally.TruePositives != 1 || tally.FalsePositives != 1 || tally.FalseNegatives != 1 || tally.TrueNegatives != 1 {
		t.Errorf("unexpected confusion matrix: %+v", tally)
	}
	if tally.Fraudulent != 2 || tally.Normal != 2 {
		t.Errorf("unexpected label counts: %+v", tally)
	}
}
