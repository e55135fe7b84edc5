package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		topics   []string
		expected Category
		ok       bool
	}{
		{topics: []string{"ukagaka-ghost"}, expected: CategoryGhost, ok: true},
		{topics: []string{"ukagaka-shell", "ukagaka-ghost"}, expected: CategoryGhost, ok: true},
		{topics: []string{"sosiremi", "ukagaka-plugin", "ukagaka-balloon"}, expected: CategoryBalloon, ok: true},
		{topics: []string{"ukagaka-plugin"}, expected: CategoryPlugin, ok: true},
		{topics: []string{"ukagaka-supplement", "sosiremi"}, ok: false},
		{topics: []string{"Ukagaka-Ghost"}, ok: false},
		{topics: nil, ok: false},
	}

	for _, testCase := range testCases {
		actual, ok := Classify(testCase.topics)
		require.Equal(t, testCase.ok, ok, "topics: %v", testCase.topics)
		require.Equal(t, testCase.expected, actual)
	}
}

func TestFormatSize(t *testing.T) {
	testCases := []struct {
		size     int
		expected string
	}{
		{size: 2048, expected: "2.0"},
		{size: 1536, expected: "1.5"},
		{size: 0, expected: "0.0"},
		{size: 1075, expected: "1.0"},
		{size: 1177, expected: "1.1"},
		{size: 52428800, expected: "51200.0"},
	}

	for _, testCase := range testCases {
		require.Equal(t, testCase.expected, FormatSize(testCase.size))
	}
}

func TestFormatTimestamp(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	ts, err := time.Parse(time.RFC3339, "2022-03-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, "2022-03-01 09:00:00", FormatTimestamp(ts, jst))
	require.Equal(t, "2022-03-01 00:00:00", FormatTimestamp(ts, time.UTC))
	require.Equal(t, "Tue, 01 Mar 2022 09:00:00 +0900", FormatTimestampRSS(ts, jst))

	late, err := time.Parse(time.RFC3339, "2022-12-31T20:30:00Z")
	require.NoError(t, err)
	require.Equal(t, "2023-01-01 05:30:00", FormatTimestamp(late, jst))
}

func TestIdentifier(t *testing.T) {
	require.Equal(t, "owner_repo-name", Identifier("owner/repo-name"))
	require.Equal(t, "no-slash", Identifier("no-slash"))
}

func TestInstallURI(t *testing.T) {
	require.Equal(t,
		"x-ukagaka-link:type=install&url=https%3A%2F%2Fgithub.com%2Fo%2Fr%2Freleases%2Fdownload%2Fv1%2Fa+b.nar",
		InstallURI("https://github.com/o/r/releases/download/v1/a b.nar"),
	)
}

func TestNewPage(t *testing.T) {
	entries := []*Entry{
		{ID: "a_1", Category: CategoryShell, Author: "a"},
		{ID: "b_1", Category: CategoryGhost, Author: "b"},
		{ID: "a_2", Category: CategoryShell, Author: "a"},
	}
	p := NewPage(entries, time.Time{})
	require.Equal(t, []Category{CategoryShell, CategoryGhost}, p.Categories)
	require.Equal(t, []string{"a", "b"}, p.Authors)
	require.Equal(t, "b_1", p.Find("b_1").ID)
	require.Nil(t, p.Find("missing"))
}
