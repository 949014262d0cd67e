package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lisinopril", "Lisinopril"},
		{"  LISINOPRIL  ", "Lisinopril"},
		{"Metformin Hydrochloride", "Metformin Hydrochloride"},
		{"amoxicillin and clavulanate", "Amoxicillin And Clavulanate"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalName(tt.in), "input %q", tt.in)
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Equal(t, 4, SeverityContraindicated.Rank())
	assert.Equal(t, 3, SeverityMajor.Rank())
	assert.Equal(t, 2, SeverityModerate.Rank())
	assert.Equal(t, 1, SeverityMinor.Rank())
	// Unknown severities are treated as moderate.
	assert.Equal(t, 2, Severity("unknown").Rank())
	assert.Equal(t, 2, Severity("").Rank())
}

func TestHasBrand(t *testing.T) {
	rec := Record{BrandNames: []string{"Prinivil", "Zestril "}}
	assert.True(t, rec.HasBrand("prinivil"))
	assert.True(t, rec.HasBrand("ZESTRIL"))
	assert.True(t, rec.HasBrand(" zestril"))
	assert.False(t, rec.HasBrand("Lipitor"))

	var empty Record
	assert.False(t, empty.HasBrand("anything"))
}
