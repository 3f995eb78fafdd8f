package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		prefix   string
		seq      int64
		want     string
	}{
		{"default", DefaultInvoiceNumberTemplate, "INV", 42, "INV-2026-0042"},
		{"wider than pad", DefaultInvoiceNumberTemplate, "INV", 12345, "INV-2026-12345"},
		{"plain sequence", "{PREFIX}{SEQ}", "C", 7, "C7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tt.template, tt.prefix, issued, tt.seq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	issued := time.Now()

	_, err := FormatInvoiceNumber("", "INV", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "INV", issued, 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, " ", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("{PREFIX}-{MONTH}", "INV", issued, 1)
	assert.Error(t, err)
}
