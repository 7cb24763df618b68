package businessflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		values   map[string]any
		expected string
	}{
		{
			name:     "substitutes known placeholders",
			body:     "Hi {name}, order #{orderid} at {branch}",
			values:   map[string]any{"name": "Miki", "orderid": 45, "branch": "Bole Branch"},
			expected: "Hi Miki, order #45 at Bole Branch",
		},
		{
			name:     "unknown placeholder passes through",
			body:     "Hi {name}, code {unknown}",
			values:   map[string]any{"name": "Miki"},
			expected: "Hi Miki, code {unknown}",
		},
		{
			name:     "tokens match case-insensitively",
			body:     "Hi {NAME}, order #{OrderId}",
			values:   map[string]any{"name": "Miki", "orderid": 99},
			expected: "Hi Miki, order #99",
		},
		{
			name:     "context keys are canonicalized",
			body:     "Hi {name}",
			values:   map[string]any{"NAME": "Miki"},
			expected: "Hi Miki",
		},
		{
			name:     "decimals keep natural representation",
			body:     "You spent {total} over {orders} orders",
			values:   map[string]any{"total": 1250.5, "orders": int64(3)},
			expected: "You spent 1250.5 over 3 orders",
		},
		{
			name:     "whole decimal prints without fraction",
			body:     "{avg}",
			values:   map[string]any{"avg": 200.0},
			expected: "200",
		},
		{
			name:     "repeated placeholder",
			body:     "{name} {name}",
			values:   map[string]any{"name": "Abebe"},
			expected: "Abebe Abebe",
		},
		{
			name:     "brace text that is not a placeholder",
			body:     "Use {curly braces} or {} freely, {name}",
			values:   map[string]any{"name": "Miki"},
			expected: "Use {curly braces} or {} freely, Miki",
		},
		{
			name:     "no placeholders",
			body:     "Happy holidays!",
			values:   nil,
			expected: "Happy holidays!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderTemplate(tt.body, NewPlaceholderContext(tt.values))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRenderTemplateIsPure(t *testing.T) {
	pc := NewPlaceholderContext(map[string]any{"name": "Miki", "orderid": uint(7)})
	body := "Hi {name} #{orderid} {x}"

	first := RenderTemplate(body, pc)
	second := RenderTemplate(body, pc)

	assert.Equal(t, first, second)
	assert.Equal(t, "Hi Miki #7 {x}", first)
	assert.Len(t, pc, 2)
}

func TestRenderTemplateLengthChangesAfterSubstitution(t *testing.T) {
	body := "{name}"
	long := strings.Repeat("a", 481)

	rendered := RenderTemplate(body, NewPlaceholderContext(map[string]any{"name": long}))

	assert.Len(t, rendered, 481)
}

func TestTemplatePlaceholders(t *testing.T) {
	assert.Equal(t, []string{"name", "orderid"}, TemplatePlaceholders("Hi {Name}, {ORDERID} {name}"))
	assert.Empty(t, TemplatePlaceholders("plain text"))
}

func TestUnresolvedPlaceholders(t *testing.T) {
	pc := NewPlaceholderContext(map[string]any{"name": "Miki"})
	assert.Equal(t, []string{"branch"}, UnresolvedPlaceholders("Hi {name} at {Branch}", pc))
	assert.Empty(t, UnresolvedPlaceholders("Hi {name}", pc))
}
