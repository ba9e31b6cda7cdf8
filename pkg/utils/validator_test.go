package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "nota fiscal", SanitizeString("  nota\x00 fiscal\x7f "))
	assert.Equal(t, "", SanitizeString("\n\t"))
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "nf-123.pdf", want: "nf-123.pdf"},
		{name: "spaces and accents", input: "Nota Fiscal Março.pdf", want: "Nota_Fiscal_Mar_o.pdf"},
		{name: "path traversal", input: "../../etc/passwd", want: "passwd"},
		{name: "windows path", input: `C:\docs\boleto.pdf`, want: "boleto.pdf"},
		{name: "only dots", input: "..", want: "file"},
		{name: "empty", input: "", want: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.input))
		})
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFileName(long)
	assert.Len(t, got, 120)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}
