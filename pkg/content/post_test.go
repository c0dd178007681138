package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostContent_Validate(t *testing.T) {
	assert.NoError(t, PostContent{Title: "夏日防晒"}.Validate())
	assert.ErrorIs(t, PostContent{Title: "  "}.Validate(), ErrEmptyTitle)
	assert.ErrorIs(t, PostContent{Body: "正文"}.Validate(), ErrEmptyTitle)
}

func TestPostContent_HasBody(t *testing.T) {
	assert.True(t, PostContent{Body: "正文"}.HasBody())
	assert.False(t, PostContent{Body: " \n"}.HasBody())
	assert.False(t, PostContent{}.HasBody())
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"single", "a.jpg", []string{"a.jpg"}},
		{"trimmed", " a.jpg ; b.png", []string{"a.jpg", "b.png"}},
		{"empty items dropped", "防晒;;夏日;", []string{"防晒", "夏日"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.in))
		})
	}
}
