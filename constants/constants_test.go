package constants

import "testing"

func TestCanonicalizePayment(t *testing.T) {
	cases := []struct {
		in   string
		want PaymentMethod
		ok   bool
	}{
		{"credito", PaymentCredit, true},
		{"  Crédito ", PaymentCredit, true},
		{"CREDITO 30 DIAS", PaymentCredit, true},
		{"al contado", PaymentCash, true},
		{"tarjeta de crédito", PaymentCard, true},
		{"Yape", PaymentYape, true},
		{"depósito", PaymentTransfer, true},
		{"letra", "LETRA", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalizePayment(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("CanonicalizePayment(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStageOrder(t *testing.T) {
	prev := 0
	for _, s := range Stages() {
		if s.Ordinal() <= prev {
			t.Fatalf("stage %s has ordinal %d after %d", s, s.Ordinal(), prev)
		}
		prev = s.Ordinal()
	}
	if Stage("ocr").Ordinal() != 0 {
		t.Fatal("unknown stage should have ordinal 0")
	}
}

func TestJobStatusDone(t *testing.T) {
	for s, want := range map[JobStatus]bool{
		JobStatusPending:    false,
		JobStatusProcessing: false,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
	} {
		if s.Done() != want {
			t.Errorf("%s.Done() = %v, want %v", s, s.Done(), want)
		}
	}
}

func TestIsPDFPath(t *testing.T) {
	for path, want := range map[string]bool{
		"factura.pdf":     true,
		"/in/FACTURA.PDF": true,
		"scan.png":        false,
		"pdf":             false,
		"archive.pdf.zip": false,
	} {
		if IsPDFPath(path) != want {
			t.Errorf("IsPDFPath(%q) = %v, want %v", path, !want, want)
		}
	}
}
