package entity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQualitySettings(t *testing.T) {
	s := DefaultQualitySettings()
	require.NoError(t, s.Validate())
	assert.False(t, s.MultipleGeneration)
	assert.Equal(t, 3, s.GenerationCount)
	assert.True(t, s.ContextPreservation)
	assert.Equal(t, AudienceGeneral, s.TargetAudience)
	assert.Equal(t, StyleFriendly, s.WritingStyle)
	assert.Equal(t, []QualityFocus{FocusReadability, FocusPersuasion}, s.QualityFocus)
}

func TestQualitySettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QualitySettings)
		ok     bool
	}{
		{"count below range", func(s *QualitySettings) { s.GenerationCount = 1 }, false},
		{"count above range", func(s *QualitySettings) { s.GenerationCount = 6 }, false},
		{"count lower bound", func(s *QualitySettings) { s.GenerationCount = 2 }, true},
		{"count upper bound", func(s *QualitySettings) { s.GenerationCount = 5 }, true},
		{"unknown audience", func(s *QualitySettings) { s.TargetAudience = "宇宙人" }, false},
		{"unknown style", func(s *QualitySettings) { s.WritingStyle = "詩的" }, false},
		{"unknown focus", func(s *QualitySettings) { s.QualityFocus = []QualityFocus{"速さ"} }, false},
		{"duplicate focus", func(s *QualitySettings) { s.QualityFocus = []QualityFocus{FocusLogic, FocusLogic} }, false},
		{"empty focus", func(s *QualitySettings) { s.QualityFocus = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultQualitySettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestContentHistory_FIFO(t *testing.T) {
	for _, n := range []int{0, 1, 4, 5, 6, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			h := ContentHistory{}
			for i := 0; i < n; i++ {
				h.Append(ContentTypeFreeContent, fmt.Sprintf("v%d", i))
			}
			got := h.Get(ContentTypeFreeContent)
			want := min(n, MaxHistoryPerType)
			require.Len(t, got, want)
			for i, v := range got {
				assert.Equal(t, fmt.Sprintf("v%d", n-want+i), v)
			}
		})
	}
}

func TestContentHistory_TypesAreIndependent(t *testing.T) {
	h := ContentHistory{}
	h.Append(ContentTypeFreeContent, "a")
	h.Append(ContentTypeSalesLetter, "b")

	assert.Equal(t, []string{"a"}, h.Get(ContentTypeFreeContent))
	assert.Equal(t, []string{"b"}, h.Get(ContentTypeSalesLetter))
	assert.Empty(t, h.Get(ContentTypeLongLP))

	cp := h.Clone()
	cp.Append(ContentTypeFreeContent, "c")
	assert.Len(t, h.Get(ContentTypeFreeContent), 1)
}
