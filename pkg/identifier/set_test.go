package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleParsing(t *testing.T) {
	testCases := []struct {
		rule  string
		valid bool
	}{
		{rule: "*", valid: true},
		{rule: "pkg.*", valid: true},
		{rule: "pkg.sub.*", valid: true},
		{rule: "pkg.Type", valid: true},
		{rule: "pkg.Type#member", valid: true},
		{rule: "", valid: false},
		{rule: "pkg.*.sub", valid: false},
		{rule: "*.pkg", valid: false},
		{rule: "pkg.Type#", valid: false},
		{rule: "#member", valid: false},
		{rule: "pkg.Type#a#b", valid: false},
		{rule: "pkg. Type", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.rule, func(t *testing.T) {
			_, err := New([]string{tc.rule}, nil)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				var cfgErr *ConfigError
				assert.ErrorAs(t, err, &cfgErr)
			}
		})
	}
}

func TestIncludesType(t *testing.T) {
	testCases := []struct {
		name     string
		includes []string
		excludes []string
		typeName string
		expected bool
	}{
		{
			name:     "wildcard matches everything",
			includes: []string{"*"},
			typeName: "any.pkg.Type",
			expected: true,
		},
		{
			name:     "package wildcard matches descendants",
			includes: []string{"pkg.*"},
			typeName: "pkg.sub.Type",
			expected: true,
		},
		{
			name:     "package wildcard does not match siblings",
			includes: []string{"pkg.*"},
			typeName: "pkgother.Type",
			expected: false,
		},
		{
			name:     "exact type",
			includes: []string{"pkg.Type"},
			typeName: "pkg.Type",
			expected: true,
		},
		{
			name:     "member reference seeds its type",
			includes: []string{"pkg.Type#field"},
			typeName: "pkg.Type",
			expected: true,
		},
		{
			name:     "exclude wins over include",
			includes: []string{"pkg.*"},
			excludes: []string{"pkg.Drop"},
			typeName: "pkg.Drop",
			expected: false,
		},
		{
			name:     "exclude wins at equal specificity",
			includes: []string{"pkg.Type"},
			excludes: []string{"pkg.Type"},
			typeName: "pkg.Type",
			expected: false,
		},
		{
			name:     "empty includes means all",
			includes: nil,
			typeName: "pkg.Type",
			expected: true,
		},
		{
			name:     "no match means excluded",
			includes: []string{"other.*"},
			typeName: "pkg.Type",
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := New(tc.includes, tc.excludes)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, set.IncludesType(tc.typeName))
		})
	}
}

func TestIncludesMember(t *testing.T) {
	testCases := []struct {
		name     string
		includes []string
		excludes []string
		typeName string
		member   string
		expected bool
	}{
		{
			name:     "type rule includes all members",
			includes: []string{"pkg.Type"},
			typeName: "pkg.Type",
			member:   "anything",
			expected: true,
		},
		{
			name:     "member rule includes only itself",
			includes: []string{"pkg.Type#a"},
			typeName: "pkg.Type",
			member:   "a",
			expected: true,
		},
		{
			name:     "member-only listing excludes other members",
			includes: []string{"pkg.Type#a"},
			typeName: "pkg.Type",
			member:   "b",
			expected: false,
		},
		{
			name:     "excluded member",
			includes: []string{"pkg.Type"},
			excludes: []string{"pkg.Type#b"},
			typeName: "pkg.Type",
			member:   "b",
			expected: false,
		},
		{
			name:     "package rule includes members",
			includes: []string{"pkg.*"},
			typeName: "pkg.Type",
			member:   "a",
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := New(tc.includes, tc.excludes)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, set.IncludesMember(tc.typeName, tc.member))
		})
	}
}

func TestRedundantRules(t *testing.T) {
	testCases := []struct {
		name      string
		rules     []string
		redundant bool
	}{
		{name: "type under package wildcard", rules: []string{"pkg.*", "pkg.Type"}, redundant: true},
		{name: "member under type", rules: []string{"pkg.Type", "pkg.Type#a"}, redundant: true},
		{name: "anything under star", rules: []string{"*", "pkg.Type"}, redundant: true},
		{name: "nested package wildcards", rules: []string{"pkg.*", "pkg.sub.*"}, redundant: true},
		{name: "disjoint rules", rules: []string{"pkg.A", "pkg.B"}, redundant: false},
		{name: "sibling packages", rules: []string{"a.*", "b.*"}, redundant: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.rules, nil)
			if tc.redundant {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "redundant")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnusedTracking(t *testing.T) {
	set, err := New([]string{"used.*", "unused.Type"}, []string{"dead.*"})
	require.NoError(t, err)

	assert.True(t, set.IncludesType("used.Thing"))

	assert.Equal(t, []string{"unused.Type"}, set.UnusedIncludes())
	assert.Equal(t, []string{"dead.*"}, set.UnusedExcludes())
}

func TestUsedMarksMostSpecificRule(t *testing.T) {
	set, err := New([]string{"pkg.A", "other.*"}, nil)
	require.NoError(t, err)

	assert.True(t, set.IncludesType("pkg.A"))
	// other.* never fired
	assert.Equal(t, []string{"other.*"}, set.UnusedIncludes())
}

func TestExcludeMarkedUsed(t *testing.T) {
	set, err := New([]string{"*"}, []string{"vitess.*"})
	require.NoError(t, err)

	assert.False(t, set.IncludesType("vitess.X"))
	assert.Empty(t, set.UnusedExcludes())
}

func TestIncludesEverything(t *testing.T) {
	all, err := New([]string{"*"}, nil)
	require.NoError(t, err)
	assert.True(t, all.IncludesEverything())
	assert.Empty(t, all.UnusedIncludes())

	empty, err := New(nil, nil)
	require.NoError(t, err)
	assert.True(t, empty.IncludesEverything())

	withExclude, err := New([]string{"*"}, []string{"x.*"})
	require.NoError(t, err)
	assert.False(t, withExclude.IncludesEverything())

	narrow, err := New([]string{"pkg.*"}, nil)
	require.NoError(t, err)
	assert.False(t, narrow.IncludesEverything())
}
