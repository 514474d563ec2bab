package telegram

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/liqoracle/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat ID is parsed before the bot token is checked against the API
	_, err := NewClient("", "not-a-number", 3, time.Second)
	assert.Error(t, err)
}

func TestFormatScaled(t *testing.T) {
	tests := []struct {
		in   *big.Int
		want string
	}{
		{big.NewInt(7336), "73.36%"},
		{big.NewInt(10000), "100.00%"},
		{big.NewInt(5), "0.05%"},
		{big.NewInt(0), "0.00%"},
		{big.NewInt(-1), "n/a"},
		{big.NewInt(-250), "-2.50%"},
		{nil, "n/a"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatScaled(tt.in), "formatScaled(%v)", tt.in)
	}
}

func TestFormatMessage(t *testing.T) {
	detected := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	alerts := []models.Alert{
		{
			PoolID:        "eth-usdc",
			BlockNumber:   1042,
			Aggregate:     big.NewInt(8509),
			Previous:      big.NewInt(9008),
			Transition:    big.NewInt(1279),
			Concentration: big.NewInt(1056),
			DetectedAt:    detected,
		},
		{
			PoolID:      "wbtc_eth",
			BlockNumber: 7,
			Aggregate:   big.NewInt(7100),
			Previous:    big.NewInt(0),
			Transition:  big.NewInt(-1),
			DetectedAt:  detected,
		},
	}

	msg := formatMessage(alerts)

	for _, want := range []string{
		"2026\\-03\\-01 12:30:00",
		"1\\. *eth\\-usdc* at block 1042",
		"📉 *85\\.09%* \\(prev 90\\.08%\\)",
		"2\\. *wbtc\\_eth* at block 7",
		"📈 *71\\.00%*",
		"transition n/a, concentration n/a",
	} {
		assert.Contains(t, msg, want)
	}
}
