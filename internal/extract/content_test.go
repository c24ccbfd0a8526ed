package extract

import "testing"

func TestTextFromContent(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "tj with line moves",
			stream: "BT\n/F1 12 Tf\n72 720 Td\n(FACTURA ELECTRONICA) Tj\nT*\n(RUC 20123456789) Tj\nET",
			want:   "FACTURA ELECTRONICA\nRUC 20123456789",
		},
		{
			name:   "single line operators",
			stream: "BT /F1 12 Tf 72 720 Td (TOTAL) Tj 100 0 Td (1770.00) Tj ET",
			want:   "TOTAL 1770.00",
		},
		{
			name:   "TJ array with kerning gap",
			stream: "BT [(SUB)10(TOTAL)-250(1500.00)] TJ ET",
			want:   "SUBTOTAL 1500.00",
		},
		{
			name:   "escapes and nested parens",
			stream: `BT (IGV \(18%\)) Tj T* (A\\B) Tj T* ((nested)) Tj ET`,
			want:   "IGV (18%)\nA\\B\n(nested)",
		},
		{
			name:   "octal latin1",
			stream: `BT (P\301GINA) Tj ET`,
			want:   "PÁGINA",
		},
		{
			name:   "hex utf16",
			stream: "BT <FEFF00480069> Tj ET",
			want:   "Hi",
		},
		{
			name:   "quote operator starts a new line",
			stream: "BT (uno) Tj (dos) ' ET",
			want:   "uno\ndos",
		},
		{
			name:   "dictionaries and comments are skipped",
			stream: "% comment (not text) Tj\n/P <</MCID 0>> BDC BT (OK) Tj ET EMC",
			want:   "OK",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textFromContent([]byte(tt.stream)); got != tt.want {
				t.Errorf("textFromContent() = %q, want %q", got, tt.want)
			}
		})
	}
}
