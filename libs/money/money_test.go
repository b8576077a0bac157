package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 130,00", FormatBRL(13000))
	assert.Equal(t, "R$ 0,05", FormatBRL(5))
	assert.Equal(t, "R$ 1500,50", FormatBRL(150050))
	assert.Equal(t, "-R$ 2,10", FormatBRL(-210))
}

func TestParseBRL(t *testing.T) {
	cases := map[string]Amount{
		"R$ 150,00": 15000,
		"150,5":     15050,
		"R$ 99":     9900,
		"grátis":    0,
		"":          0,
		"R$ 1,2,3":  120,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseBRL(in), in)
	}
}

func TestAmountJSON(t *testing.T) {
	var v struct {
		Price Amount `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price":149.9}`), &v))
	assert.Equal(t, Amount(14990), v.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price":"R$ 130,00"}`), &v))
	assert.Equal(t, Amount(13000), v.Price)

	assert.Error(t, json.Unmarshal([]byte(`{"price":true}`), &v))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":130.00}`, string(out))
}
