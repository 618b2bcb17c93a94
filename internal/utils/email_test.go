package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Quarterly report", "quarterly report"},
		{"single reply prefix", "Re: Quarterly report", "quarterly report"},
		{"chained prefixes", "Re: Fwd: Re: Quarterly report", "quarterly report"},
		{"numbered reply", "Re[2]: Quarterly report", "quarterly report"},
		{"german reply", "AW: Angebot", "angebot"},
		{"forward", "FW: invoice", "invoice"},
		{"inner whitespace collapsed", "Re:   budget    2026", "budget 2026"},
		{"prefix only", "Re:", ""},
		{"empty", "", ""},
		{"prefix-like word kept", "Reply needed", "reply needed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEmailSubject(tt.input))
		})
	}
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID("<abc@example.com>"))
	assert.Equal(t, "abc@example.com", NormalizeMessageID("  <abc@example.com>  "))
	assert.Equal(t, "abc@example.com", NormalizeMessageID("abc@example.com"))
	assert.Equal(t, "", NormalizeMessageID(""))
	assert.Equal(t, "", NormalizeMessageID("<>"))
}

func TestExtractEmailAddress(t *testing.T) {
	assert.Equal(t, "alice@example.com", ExtractEmailAddress("Alice Smith <alice@example.com>"))
	assert.Equal(t, "alice@example.com", ExtractEmailAddress("alice@example.com"))
	assert.Equal(t, "alice@example.com", ExtractEmailAddress("  alice@example.com  "))
	assert.Equal(t, "alice@example.com", ExtractEmailAddress(`"Smith, Alice" <alice@example.com>`))
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomainFromEmail("alice@example.com"))
	assert.Equal(t, "example.com", ExtractDomainFromEmail("Alice <alice@EXAMPLE.COM>"))
	assert.Equal(t, "", ExtractDomainFromEmail("not-an-address"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}

func TestUniqueEmailsFold(t *testing.T) {
	got := UniqueEmailsFold([]string{
		"Alice@Example.com",
		"alice@example.com",
		"bob@example.com",
		"",
		"  ",
	})
	assert.Equal(t, []string{"Alice@Example.com", "bob@example.com"}, got)
}

func TestContainsFold(t *testing.T) {
	slice := []string{"Alice@Example.com", "bob@example.com"}
	assert.True(t, ContainsFold(slice, "alice@example.com"))
	assert.True(t, ContainsFold(slice, "BOB@EXAMPLE.COM"))
	assert.False(t, ContainsFold(slice, "carol@example.com"))
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("iem", 24)
	assert.True(t, strings.HasPrefix(id, "iem_"))
	assert.Len(t, id, len("iem_")+24)
	assert.NotEqual(t, id, GenerateNanoIDWithPrefix("iem", 24))
}

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("mailcore.invalid", "iem_000001")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@mailcore.invalid>"))

	// Same metadata still yields distinct ids
	assert.NotEqual(t, id, GenerateMessageID("mailcore.invalid", "iem_000001"))
}
