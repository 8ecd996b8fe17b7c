package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpportunity(t *testing.T) {
	t.Parallel()

	base := OpportunityInput{
		RepositoryID: "repo-1",
		Type:         OpportunityDependencyUpdate,
		Title:        "Update FastAPI",
		Priority:     3,
		Confidence:   0.9,
	}

	t.Run("should build a valid opportunity with a fresh id", func(t *testing.T) {
		t.Parallel()

		// when
		o, err := NewOpportunity(base)

		// then
		require.NoError(t, err)
		assert.NotEmpty(t, o.ID)
		assert.Equal(t, []string{}, o.FilesAffected)
		assert.False(t, o.CreatedAt.IsZero())
	})

	cases := []struct {
		name   string
		mutate func(*OpportunityInput)
	}{
		{"priority below range", func(in *OpportunityInput) { in.Priority = 0 }},
		{"priority above range", func(in *OpportunityInput) { in.Priority = 11 }},
		{"negative confidence", func(in *OpportunityInput) { in.Confidence = -0.1 }},
		{"confidence above one", func(in *OpportunityInput) { in.Confidence = 1.01 }},
		{"NaN confidence", func(in *OpportunityInput) { in.Confidence = math.NaN() }},
		{"unknown type", func(in *OpportunityInput) { in.Type = "refactor" }},
		{"missing repository", func(in *OpportunityInput) { in.RepositoryID = "" }},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			t.Parallel()

			// given
			in := base
			tc.mutate(&in)

			// when
			o, err := NewOpportunity(in)

			// then
			require.Error(t, err)
			assert.Nil(t, o)
		})
	}

	t.Run("should accept range boundaries", func(t *testing.T) {
		t.Parallel()

		for _, in := range []OpportunityInput{
			{RepositoryID: "r", Type: OpportunityDocumentation, Priority: 1, Confidence: 0},
			{RepositoryID: "r", Type: OpportunityDocumentation, Priority: 10, Confidence: 1},
		} {
			_, err := NewOpportunity(in)
			assert.NoError(t, err)
		}
	})
}

func TestReviewValidate(t *testing.T) {
	t.Parallel()

	for name, score := range map[string]float64{
		"negative":  -0.5,
		"above ten": 10.5,
		"NaN":       math.NaN(),
	} {
		t.Run("should reject a "+name+" score", func(t *testing.T) {
			t.Parallel()

			assert.Error(t, (&Review{Score: score}).Validate())
		})
	}

	t.Run("should accept range boundaries", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, (&Review{Score: 0}).Validate())
		assert.NoError(t, (&Review{Score: 10}).Validate())
	})
}

func TestParseProviderType(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]ProviderType{
		"github":       ProviderGitHub,
		" GitLab ":     ProviderGitLab,
		"azure":        ProviderAzureDevOps,
		"azure_devops": ProviderAzureDevOps,
		"codecommit":   ProviderCodeCommit,
		"git":          ProviderGenericGit,
	} {
		got, err := ParseProviderType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseProviderType("sourceforge")
	assert.Error(t, err)
}

func TestLanguageForPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LanguagePython, LanguageForPath("app/main.PY"))
	assert.Equal(t, LanguageTypeScript, LanguageForPath("web/App.tsx"))
	assert.Equal(t, LanguageGo, LanguageForPath("cmd/root.go"))
	assert.Equal(t, Language(""), LanguageForPath("README.md"))
}

func TestParsePRStatus(t *testing.T) {
	t.Parallel()

	s, err := ParsePRStatus("merged")
	require.NoError(t, err)
	assert.Equal(t, PRMerged, s)

	_, err = ParsePRStatus("reopened")
	assert.Error(t, err)
}
