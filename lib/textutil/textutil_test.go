package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "Intro to Go", expected: "introtogo"},
		{input: "  DATA\tStructures\n", expected: "datastructures"},
		{input: "作業 一", expected: "作業一"},
	}
	for _, row := range table {
		require.Equal(t, row.expected, NormalizeName(row.input))
	}
}

func TestBestMatch(t *testing.T) {
	courses := []string{"Linear Algebra", "Data Structures", "Operating Systems"}

	table := []struct {
		query    string
		expected int
	}{
		{query: "data structures", expected: 1},
		{query: "Data Structure", expected: 1},
		{query: "operating sys", expected: 2},
		{query: "zzzz", expected: -1},
	}
	for _, row := range table {
		index, _ := BestMatch(row.query, courses, 0.8)
		require.Equal(t, row.expected, index, row.query)
	}
}
