// validator.go re-derives and checks invoice reference numbers.
//
// Validation runs four independent checks, each individually reportable:
//
//	format     - the IRN string has the required structure
//	components - the service id and date components are well formed
//	invoice    - the first component matches the sanitized invoice number
//	integrity  - the hash and verification code recompute from the supplied data
//
// A ValidationReport aggregates the checks so callers can see exactly which
// one failed rather than a bare "invalid".
package irn

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

// CheckResult is the outcome of a single validation check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// ValidationReport aggregates the individual checks into one pass/fail.
type ValidationReport struct {
	IRN    string        `json:"irn"`
	Valid  bool          `json:"valid"`
	Checks []CheckResult `json:"checks"`
}

// failed returns the first failing check, or nil.
func (r *ValidationReport) failed() *CheckResult {
	for i := range r.Checks {
		if !r.Checks[i].Passed {
			return &r.Checks[i]
		}
	}
	return nil
}

// Err returns a code-specific error for the first failing check, or nil when
// the report is valid.
func (r *ValidationReport) Err() error {
	if r.Valid {
		return nil
	}
	check := r.failed()
	if check == nil {
		return NewInternalError("report marked invalid but all checks passed")
	}
	switch check.Name {
	case "format", "components":
		return NewFormatError(check.Reason)
	case "invoice_match":
		return NewComponentMismatchError(check.Reason)
	case "integrity":
		return NewIntegrityError(check.Reason)
	default:
		return NewInternalError(fmt.Sprintf("unknown check %s: %s", check.Name, check.Reason))
	}
}

// CheckFormat verifies the structural requirements of an IRN string:
// exactly three dash-separated components, an 8-character alphanumeric second
// component and an 8-digit third component.
func CheckFormat(irnString string) CheckResult {
	result := CheckResult{Name: "format"}

	parts := strings.Split(irnString, "-")
	if len(parts) != 3 {
		result.Reason = fmt.Sprintf("expected 3 dash-separated components, got %d", len(parts))
		return result
	}

	if parts[0] == "" {
		result.Reason = "invoice number component is empty"
		return result
	}

	if err := checkServiceID(parts[1]); err != nil {
		result.Reason = fmt.Sprintf("service id component: %v", err)
		return result
	}

	if len(parts[2]) != 8 {
		result.Reason = fmt.Sprintf("date component must be 8 digits, got %d characters", len(parts[2]))
		return result
	}
	for _, c := range parts[2] {
		if c < '0' || c > '9' {
			result.Reason = fmt.Sprintf("date component must be numeric, got %q", parts[2])
			return result
		}
	}

	result.Passed = true
	return result
}

// Validate runs the full validation of an IRN string against the invoice
// fields and the stored record (unique id, hash, verification code).
func Validate(irnString string, fields InvoiceFields, record *Record) *ValidationReport {
	report := &ValidationReport{IRN: irnString}

	// format
	formatCheck := CheckFormat(irnString)
	report.Checks = append(report.Checks, formatCheck)
	if !formatCheck.Passed {
		return report
	}

	parts := strings.Split(irnString, "-")

	// components - the service id and date must match the record
	componentCheck := CheckResult{Name: "components", Passed: true}
	if record != nil {
		if parts[1] != record.ServiceID {
			componentCheck.Passed = false
			componentCheck.Reason = fmt.Sprintf("service id %q does not match record %q", parts[1], record.ServiceID)
		} else if parts[2] != record.DateStamp {
			componentCheck.Passed = false
			componentCheck.Reason = fmt.Sprintf("date stamp %q does not match record %q", parts[2], record.DateStamp)
		}
	}
	report.Checks = append(report.Checks, componentCheck)
	if !componentCheck.Passed {
		return report
	}

	// invoice match - first component equals the sanitized invoice number
	invoiceCheck := CheckResult{Name: "invoice_match", Passed: true}
	sanitized := SanitizeInvoiceNumber(fields.InvoiceNumber)
	if parts[0] != sanitized {
		invoiceCheck.Passed = false
		invoiceCheck.Reason = fmt.Sprintf("invoice number component %q does not match sanitized invoice number %q", parts[0], sanitized)
	}
	report.Checks = append(report.Checks, invoiceCheck)
	if !invoiceCheck.Passed {
		return report
	}

	// integrity - recompute the hash and verification code and compare byte for byte
	integrityCheck := CheckResult{Name: "integrity", Passed: true}
	if record == nil {
		integrityCheck.Passed = false
		integrityCheck.Reason = "no stored record supplied for integrity check"
	} else {
		recomputedHash, err := ContentHash(fields, record.UniqueID)
		if err != nil {
			integrityCheck.Passed = false
			integrityCheck.Reason = fmt.Sprintf("failed to recompute hash: %v", err)
		} else if subtle.ConstantTimeCompare([]byte(recomputedHash), []byte(record.ContentHash)) != 1 {
			integrityCheck.Passed = false
			integrityCheck.Reason = "content hash does not match - invoice data has changed"
		} else {
			recomputedCode, err := VerificationCode(recomputedHash)
			if err != nil {
				integrityCheck.Passed = false
				integrityCheck.Reason = fmt.Sprintf("failed to recompute verification code: %v", err)
			} else if subtle.ConstantTimeCompare([]byte(recomputedCode), []byte(record.VerificationCode)) != 1 {
				integrityCheck.Passed = false
				integrityCheck.Reason = "verification code does not match"
			}
		}
	}
	report.Checks = append(report.Checks, integrityCheck)

	report.Valid = report.failed() == nil
	return report
}
