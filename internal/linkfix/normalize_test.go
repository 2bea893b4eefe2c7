package linkfix

import (
	"context"
	"strings"
	"testing"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, ampURL string) (string, bool) {
	args := m.Called(ampURL)
	return args.String(0), args.Bool(1)
}

func TestNormalizer_Normalize(t *testing.T) {
	resolver := &MockResolver{}
	resolver.On("Resolve", "https://www.wikihow.com/Make-Pancakes?amp=1").Return("https://www.wikihow.com/Make-Pancakes", true)
	resolver.On("Resolve", "https://www.google.com/amp/s/m.wikihow.com/Nap").Return("https://m.wikihow.com/Nap", true)
	resolver.On("Resolve", "https://m.wikihow.com/Bake-Bread?amp=1").Return("", false)
	resolver.On("Resolve", "https://www.wikihow.com/Sleep/amp").Return("", false)

	normalizer := NewNormalizer(resolver)
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "No link",
			text:     "it's from wikihow I promise",
			expected: "",
		},
		{
			name:     "Canonical plain link needs no change",
			text:     "https://www.wikihow.com/Make-Pancakes",
			expected: "",
		},
		{
			name:     "Mobile link",
			text:     "https://m.example.wikihow/Foo",
			expected: "Desktop link: https://www.example.wikihow/Foo",
		},
		{
			name:     "Mobile link in a hyperlink",
			text:     "[source](https://m.wikihow.com/Nap)",
			expected: "Desktop link: https://www.wikihow.com/Nap",
		},
		{
			name:     "Hyperlink",
			text:     "[click me](https://www.wikihow.com/Nap)",
			expected: "Plain-text link: https://www.wikihow.com/Nap",
		},
		{
			name:     "Hyperlink showing the link",
			text:     "[https://www.wikihow.com/Nap](https://www.wikihow.com/Nap)",
			expected: "",
		},
		{
			name:     "AMP link resolved",
			text:     "https://www.wikihow.com/Make-Pancakes?amp=1",
			expected: "Non-AMP link: https://www.wikihow.com/Make-Pancakes",
		},
		{
			name:     "AMP link resolved to a mobile page",
			text:     "https://www.google.com/amp/s/m.wikihow.com/Nap",
			expected: "Non-AMP link: https://www.wikihow.com/Nap",
		},
		{
			name:     "Unresolved AMP link falls back to the mobile rewrite",
			text:     "https://m.wikihow.com/Bake-Bread?amp=1",
			expected: "Desktop link: https://www.wikihow.com/Bake-Bread?amp=1",
		},
		{
			name:     "Unresolved AMP link left alone",
			text:     "https://www.wikihow.com/Sleep/amp",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizer.Normalize(ctx, tt.text, false))
		})
	}
}

func TestNormalizer_Reapproval(t *testing.T) {
	resolver := &MockResolver{}
	resolver.On("Resolve", "https://www.wikihow.com/Make-Pancakes?amp=1").Return("https://www.wikihow.com/Make-Pancakes", true)
	normalizer := NewNormalizer(resolver)
	ctx := context.Background()

	texts := []string{
		"https://m.example.wikihow/Foo",
		"[click me](https://www.wikihow.com/Nap)",
		"https://www.wikihow.com/Make-Pancakes?amp=1",
	}

	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			fixed := normalizer.Normalize(ctx, text, false)
			reapproved := normalizer.Normalize(ctx, text, true)

			assert.NotEmpty(t, fixed)
			assert.True(t, strings.HasPrefix(reapproved, models.PrefixUserProvided))

			_, fixedLink, _ := strings.Cut(fixed, ": ")
			assert.Equal(t, fixedLink, strings.TrimPrefix(reapproved, models.PrefixUserProvided))
		})
	}

	assert.Equal(t, "User-provided source: https://example.wikihow/Bar",
		normalizer.Normalize(ctx, "https://example.wikihow/Bar", true))
	assert.Equal(t, "", normalizer.Normalize(ctx, "no link here", true))
	assert.Equal(t, "User-provided source: https://www.wikihow.com/Foo",
		normalizer.Normalize(ctx, "https://www.wikihow.com/Foo, thanks", true))
	assert.Equal(t, "Desktop link: https://www.wikihow.com/Foo's",
		normalizer.Normalize(ctx, DecodeText("100% sure https://m.wikihow.com/Foo%27s"), false))
}

func TestNormalizer_AMPOutputHasNoMarkers(t *testing.T) {
	resolver := &MockResolver{}
	resolver.On("Resolve", "https://amp.wikihow.com/Nap?amp=1").Return("https://www.wikihow.com/Nap", true)
	normalizer := NewNormalizer(resolver)

	out := normalizer.Normalize(context.Background(), "https://amp.wikihow.com/Nap?amp=1", false)
	assert.True(t, strings.HasPrefix(out, models.PrefixNonAMP))
	assert.False(t, IsAMP(strings.TrimPrefix(out, models.PrefixNonAMP)))
}

func TestNormalizer_Classify(t *testing.T) {
	resolver := &MockResolver{}
	resolver.On("Resolve", "https://www.wikihow.com/Sleep/amp").Return("", false)
	normalizer := NewNormalizer(resolver)
	ctx := context.Background()

	result, ok := normalizer.Classify(ctx, "https://www.wikihow.com/Sleep/amp")
	assert.True(t, ok)
	assert.Equal(t, models.FormPlain, result.Form)
	assert.Equal(t, "", result.Canonical)
	assert.Equal(t, "https://www.wikihow.com/Sleep/amp", result.Link)

	result, ok = normalizer.Classify(ctx, "[x](https://m.wikihow.com/Nap)")
	assert.True(t, ok)
	assert.Equal(t, models.FormMobile, result.Form)
	assert.Equal(t, "https://m.wikihow.com/Nap", result.RawURL)
	assert.Equal(t, "https://www.wikihow.com/Nap", result.Canonical)

	_, ok = normalizer.Classify(ctx, "nothing")
	assert.False(t, ok)
}

func TestNormalizer_NilResolver(t *testing.T) {
	normalizer := NewNormalizer(nil)
	assert.Equal(t, "", normalizer.Normalize(context.Background(), "https://www.wikihow.com/Nap?amp=1", false))
}
