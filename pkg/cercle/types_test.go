package cercle

import (
	"errors"
	"testing"
)

func TestParseRole(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		raw      string
		expected Role
		wantErr  error
	}{
		{name: "member", raw: "member", expected: RoleMember},
		{name: "operator", raw: "operator", expected: RoleOperator},
		{name: "trimmed", raw: " operator ", expected: RoleOperator},
		{name: "unknown", raw: "boss", wantErr: ErrInvalidRole},
		{name: "empty", raw: "", wantErr: ErrInvalidRole},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			role, err := ParseRole(testCase.raw)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if role != testCase.expected {
				test.Fatalf("expected %q, got %q", testCase.expected, role)
			}
		})
	}
}

func TestParseCotisation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		raw      string
		expected Cotisation
		wantErr  error
	}{
		{name: "none", raw: "none", expected: CotisationNone},
		{name: "no alcohol", raw: "no_alcohol", expected: CotisationNoAlcohol},
		{name: "with alcohol", raw: "with_alcohol", expected: CotisationWithAlcohol},
		{name: "unknown", raw: "vip", wantErr: ErrInvalidStatus},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			status, err := ParseCotisation(testCase.raw)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if status != testCase.expected {
				test.Fatalf("expected %q, got %q", testCase.expected, status)
			}
		})
	}
}

func TestParseEntryKind(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"drink", "snack", "recharge", "other"} {
		if _, err := ParseEntryKind(raw); err != nil {
			test.Fatalf("expected %q accepted: %v", raw, err)
		}
	}
	if _, err := ParseEntryKind("cocktail"); !errors.Is(err, ErrInvalidKind) {
		test.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestEntryKindBillable(test *testing.T) {
	test.Parallel()
	if !KindDrink.Billable() || !KindSnack.Billable() {
		test.Fatalf("drinks and snacks must be billable")
	}
	if KindRecharge.Billable() || KindOther.Billable() {
		test.Fatalf("recharges and corrections must not be billable")
	}
	if !KindDrink.RequiresItem() || KindRecharge.RequiresItem() {
		test.Fatalf("item requirement must follow billability")
	}
}

func TestMetadataJSONDefaultsAndValidation(test *testing.T) {
	test.Parallel()
	empty, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("empty metadata: %v", err)
	}
	if empty.String() != "{}" {
		test.Fatalf("expected {} default, got %q", empty.String())
	}

	var zero MetadataJSON
	if zero.String() != "{}" {
		test.Fatalf("expected zero value to render {}, got %q", zero.String())
	}

	valid := mustMetadata(test, `{"note":"tournee"}`)
	if valid.String() != `{"note":"tournee"}` {
		test.Fatalf("unexpected metadata: %q", valid.String())
	}

	if _, err := NewMetadataJSON(`{"broken"`); !errors.Is(err, ErrInvalidMetadata) {
		test.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestEntryDraftValidate(test *testing.T) {
	test.Parallel()
	itemID := ItemID(1)
	testCases := []struct {
		name    string
		draft   EntryDraft
		wantErr error
	}{
		{
			name:  "valid drink",
			draft: EntryDraft{Kind: KindDrink, ItemID: &itemID, Quantity: 1, AmountCents: -250},
		},
		{
			name:  "valid recharge without item",
			draft: EntryDraft{Kind: KindRecharge, Quantity: 1, AmountCents: 500},
		},
		{
			name:    "unknown kind",
			draft:   EntryDraft{Kind: EntryKind("cocktail"), Quantity: 1, AmountCents: -250},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "zero quantity",
			draft:   EntryDraft{Kind: KindDrink, ItemID: &itemID, Quantity: 0, AmountCents: -250},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "zero amount billable",
			draft:   EntryDraft{Kind: KindSnack, ItemID: &itemID, Quantity: 1, AmountCents: 0},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "drink without item",
			draft:   EntryDraft{Kind: KindDrink, Quantity: 1, AmountCents: -250},
			wantErr: ErrMissingItem,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			err := testCase.draft.Validate()
			if testCase.wantErr == nil {
				if err != nil {
					test.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestNewServiceRejectsNilDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
}
