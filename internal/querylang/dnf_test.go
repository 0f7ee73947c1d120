package querylang

import (
	"errors"
	"testing"
)

func TestToDNF(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantBranches int
		wantString   string
	}{
		{
			name:         "single comparison",
			input:        "A == 1",
			wantBranches: 1,
			wantString:   "A == 1",
		},
		{
			name:         "and",
			input:        "A == 1 && B == 2",
			wantBranches: 1,
			wantString:   "(A == 1 && B == 2)",
		},
		{
			name:         "or",
			input:        "A == 1 || B == 2",
			wantBranches: 2,
			wantString:   "A == 1 || B == 2",
		},
		{
			name:         "distributes",
			input:        "(A == 1 || B == 2) && C == 3",
			wantBranches: 2,
			wantString:   "(A == 1 && C == 3) || (B == 2 && C == 3)",
		},
		{
			name:         "De Morgan OR",
			input:        "!(A == 1 || B == 2)",
			wantBranches: 1,
			wantString:   "(!(A == 1) && !(B == 2))",
		},
		{
			name:         "De Morgan AND",
			input:        "!(A == 1 && B == 2)",
			wantBranches: 2,
			wantString:   "!(A == 1) || !(B == 2)",
		},
		{
			name:         "double negation",
			input:        "!!(A == 1)",
			wantBranches: 1,
			wantString:   "A == 1",
		},
		{
			name:         "function leaf",
			input:        "SOURCE == 'a' && filter:includeText(BODY, 'x')",
			wantBranches: 1,
			wantString:   "(SOURCE == 'a' && filter:includeText(BODY, 'x'))",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dnf, err := ToDNF(MustParse(tc.input), 0)
			if err != nil {
				t.Fatalf("ToDNF: %v", err)
			}
			if len(dnf.Branches) != tc.wantBranches {
				t.Errorf("branches = %d, want %d", len(dnf.Branches), tc.wantBranches)
			}
			if got := dnf.String(); got != tc.wantString {
				t.Errorf("String() = %q, want %q", got, tc.wantString)
			}
		})
	}
}

func TestToDNFLimit(t *testing.T) {
	script := MustParse("(A == 1 || A == 2) && (B == 1 || B == 2)")

	if _, err := ToDNF(script, 3); !errors.Is(err, ErrDNFTooLarge) {
		t.Errorf("expected ErrDNFTooLarge, got %v", err)
	}
	dnf, err := ToDNF(script, 4)
	if err != nil {
		t.Fatalf("ToDNF within limit: %v", err)
	}
	if len(dnf.Branches) != 4 {
		t.Errorf("branches = %d, want 4", len(dnf.Branches))
	}
}
