package irn

import (
	"testing"
)

func TestValidateGeneratedIRN(t *testing.T) {
	record, err := Generate(testFields, GenerateOptions{ServiceID: "94ND90NR"})
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	report := Validate(record.IRN(), testFields, record)
	if !report.Valid {
		t.Fatalf("Validate() failed for freshly generated IRN: %+v", report.Checks)
	}
	if report.Err() != nil {
		t.Errorf("Err() = %v for valid report, expected nil", report.Err())
	}

	// all four checks ran and passed
	if len(report.Checks) != 4 {
		t.Errorf("expected 4 checks, got %d", len(report.Checks))
	}
	for _, check := range report.Checks {
		if !check.Passed {
			t.Errorf("check %s failed: %s", check.Name, check.Reason)
		}
	}
}

func TestValidateDetectsFieldMutation(t *testing.T) {
	record, err := Generate(testFields, GenerateOptions{ServiceID: "94ND90NR"})
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// mutating any one field makes validation fail with a field-specific reason
	tests := []struct {
		name        string
		mutate      func(f InvoiceFields) InvoiceFields
		failedCheck string
	}{
		{
			name: "invoice number changed",
			mutate: func(f InvoiceFields) InvoiceFields {
				f.InvoiceNumber = "INV2025002"
				return f
			},
			failedCheck: "invoice_match",
		},
		{
			name: "total amount changed",
			mutate: func(f InvoiceFields) InvoiceFields {
				f.TotalAmount = 1500.01
				return f
			},
			failedCheck: "integrity",
		},
		{
			name: "seller tax id changed",
			mutate: func(f InvoiceFields) InvoiceFields {
				f.SellerTaxID = "NG000000000"
				return f
			},
			failedCheck: "integrity",
		},
		{
			name: "currency changed",
			mutate: func(f InvoiceFields) InvoiceFields {
				f.Currency = "USD"
				return f
			},
			failedCheck: "integrity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate(record.IRN(), tt.mutate(testFields), record)
			if report.Valid {
				t.Fatalf("Validate() passed for mutated data")
			}

			failed := report.failed()
			if failed == nil {
				t.Fatalf("report invalid but no failing check recorded")
			}
			if failed.Name != tt.failedCheck {
				t.Errorf("failing check = %s, expected %s (reason: %s)", failed.Name, tt.failedCheck, failed.Reason)
			}
			if report.Err() == nil {
				t.Errorf("Err() = nil for invalid report")
			}
		})
	}
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		name    string
		irn     string
		wantErr bool
	}{
		{name: "valid", irn: "INV2025001-94ND90NR-20250516", wantErr: false},
		{name: "two components", irn: "INV2025001-20250516", wantErr: true},
		{name: "four components", irn: "INV-2025001-94ND90NR-20250516", wantErr: true},
		{name: "short service id", irn: "INV2025001-ABC-20250516", wantErr: true},
		{name: "non-numeric date", irn: "INV2025001-94ND90NR-2025O516", wantErr: true},
		{name: "short date", irn: "INV2025001-94ND90NR-202505", wantErr: true},
		{name: "empty invoice component", irn: "-94ND90NR-20250516", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CheckFormat(tt.irn)
			if tt.wantErr && check.Passed {
				t.Errorf("CheckFormat(%q) passed, expected failure", tt.irn)
			}
			if !tt.wantErr && !check.Passed {
				t.Errorf("CheckFormat(%q) failed: %s", tt.irn, check.Reason)
			}
		})
	}
}

func TestValidateComponentMismatch(t *testing.T) {
	record, err := Generate(testFields, GenerateOptions{ServiceID: "94ND90NR"})
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// an IRN with a different service id fails the component check
	report := Validate("INV2025001-XXXXXXXX-20250516", testFields, record)
	if report.Valid {
		t.Fatalf("Validate() passed for wrong service id")
	}
	if failed := report.failed(); failed == nil || failed.Name != "components" {
		t.Errorf("expected components check to fail, got %+v", failed)
	}
}

func TestRecordLifecycle(t *testing.T) {
	record, err := Generate(testFields, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// UNUSED -> ACTIVE on first successful submission
	if err := record.Activate(); err != nil {
		t.Fatalf("Activate() returned error: %v", err)
	}
	if record.Status != StatusActive {
		t.Errorf("status = %s, expected %s", record.Status, StatusActive)
	}

	// ACTIVE -> REVOKED is allowed
	if err := record.Revoke(); err != nil {
		t.Fatalf("Revoke() returned error: %v", err)
	}

	// terminal states are immutable
	if err := record.Activate(); err == nil {
		t.Errorf("Activate() on revoked record expected error, got nil")
	}
	if err := record.Transition(StatusExpired); err == nil {
		t.Errorf("Transition() out of terminal state expected error, got nil")
	}
}

func TestExpireIfPast(t *testing.T) {
	record, err := Generate(testFields, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}

	// not yet past the validity window
	if record.ExpireIfPast(record.GeneratedAt) {
		t.Errorf("ExpireIfPast() expired a record inside its validity window")
	}

	// past the window
	if !record.ExpireIfPast(record.ValidUntil.Add(1)) {
		t.Errorf("ExpireIfPast() did not expire a record past its validity window")
	}
	if record.Status != StatusExpired {
		t.Errorf("status = %s, expected %s", record.Status, StatusExpired)
	}

	// expired is terminal - a second call is a no-op
	if record.ExpireIfPast(record.ValidUntil.Add(1)) {
		t.Errorf("ExpireIfPast() reported expiry for an already terminal record")
	}
}
