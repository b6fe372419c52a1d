package feed

import (
	"testing"

	"exchlink/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickers(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []model.TickerUpdate
		wantErr bool
	}{
		{
			name: "array keeps order and values verbatim",
			raw:  `[{"e":"24hrTicker","s":"BTCUSDT","c":"60000.10","v":"1"},{"s":"ETHUSDT","c":"3000.000"},{"s":"1000PEPEUSDT","c":"0.0123400"}]`,
			want: []model.TickerUpdate{
				{Symbol: "BTCUSDT", LastPrice: "60000.10"},
				{Symbol: "ETHUSDT", LastPrice: "3000.000"},
				{Symbol: "1000PEPEUSDT", LastPrice: "0.0123400"},
			},
		},
		{
			name: "empty array",
			raw:  `[]`,
			want: []model.TickerUpdate{},
		},
		{
			name: "subscription reply",
			raw:  `{"result":null,"id":1}`,
		},
		{
			name:    "exchange error reply",
			raw:     `{"code":2,"msg":"Invalid request"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `hello`,
			wantErr: true,
		},
		{
			name:    "empty frame",
			raw:     "  ",
			wantErr: true,
		},
		{
			name:    "record without price",
			raw:     `[{"s":"BTCUSDT","c":"1"},{"s":"ETHUSDT"}]`,
			wantErr: true,
		},
		{
			name:    "price is a number",
			raw:     `[{"s":"BTCUSDT","c":60000}]`,
			wantErr: true,
		},
		{
			name:    "unknown object",
			raw:     `{"stream":"x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTickers([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
