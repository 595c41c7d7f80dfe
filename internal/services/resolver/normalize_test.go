package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"삼성전자", "삼성전자"},
		{"삼성전자(주)", "삼성전자"},
		{"㈜ 삼성전자", "삼성전자"},
		{"주식회사 카카오", "카카오"},
		{"ＬＧ전자", "lg전자"},
		{"Samsung Electronics Co., Ltd.", "samsungelectronics"},
		{"SAMSUNG ELECTRONICS CO,.LTD", "samsungelectronics"},
		{"SK hynix Inc.", "skhynix"},
		{"Costco", "costco"},
		{"Co., Ltd.", "co"}, // never strips down to nothing
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("삼성전자", "삼성전자"))
	assert.Equal(t, 0.5, Similarity("삼성", "삼성전자"))
	assert.Equal(t, 0.75, Similarity("삼성전기", "삼성전자"))
	assert.Zero(t, Similarity("", "삼성전자"))
}
