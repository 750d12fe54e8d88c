package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPluralizeBonuses(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "бонус"},
		{21, "бонус"},
		{101, "бонус"},
		{2, "бонуса"},
		{4, "бонуса"},
		{22, "бонуса"},
		{0, "бонусов"},
		{5, "бонусов"},
		{11, "бонусов"},
		{12, "бонусов"},
		{14, "бонусов"},
		{100, "бонусов"},
		{-2, "бонуса"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, PluralizeBonuses(tt.n), "n=%d", tt.n)
	}
}

func TestFormatBonuses(t *testing.T) {
	require.Equal(t, "150 бонусов", FormatBonuses(150))
	require.Equal(t, "1 бонус", FormatBonuses(1))
	require.Equal(t, "3 бонуса", FormatBonuses(3))
}
