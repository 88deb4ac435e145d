package detection

import "testing"

func TestValidateLuhn_Valid(t *testing.T) {
	ok, conf := validateLuhn("4532015112830366")
	if !ok {
		t.Fatal("expected valid Luhn card")
	}
	if conf <= 0 {
		t.Fatalf("confidence = %v, want > 0", conf)
	}
}

func TestValidateLuhn_Invalid(t *testing.T) {
	ok, _ := validateLuhn("4532015112830367")
	if ok {
		t.Fatal("expected invalid Luhn card to be rejected")
	}
}

func TestValidateSSN_RejectsReservedArea(t *testing.T) {
	ok, _ := validateSSN("000-12-3456")
	if ok {
		t.Fatal("expected SSN with area 000 to be rejected")
	}
}

func TestValidateSSN_Accepts(t *testing.T) {
	ok, _ := validateSSN("219-09-9999")
	if !ok {
		t.Fatal("expected well-formed SSN to be accepted")
	}
}

func TestValidateABA_KnownGood(t *testing.T) {
	ok, _ := validateABA("021000021")
	if !ok {
		t.Fatal("expected known-good ABA routing number to validate")
	}
}

func TestValidateIBAN_KnownGood(t *testing.T) {
	ok, _ := validateIBAN("GB82 WEST 1234 5698 7654 32")
	if !ok {
		t.Fatal("expected known-good IBAN to validate")
	}
}

func TestValidateVIN_KnownGood(t *testing.T) {
	ok, _ := validateVIN("1HGCM82633A004352")
	if !ok {
		t.Fatal("expected known-good VIN to validate")
	}
}

func TestRunPatternDetectors_FindsEmail(t *testing.T) {
	spans := RunPatternDetectors("contact jane.doe@example.com for details")
	found := false
	for _, s := range spans {
		if s.EntityType == "EMAIL" && s.Value == "jane.doe@example.com" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected EMAIL span for jane.doe@example.com")
	}
}
