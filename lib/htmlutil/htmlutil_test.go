package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div class="login">
	<form>
		<input type="text" name="a">
		<input type="text" name="b">
		<input type="password" id="pw">
	</form>
	<a href="/course/view.php?id=4"> Intro   to
		Go </a>
	<a href="https://other.example.com/x">Other</a>
</div>
<span id="dup"></span><span id="dup"></span>
</body></html>`

func parse(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestCleanText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "  a  b \n c ", expected: "a b c"},
		{input: "​a\tb", expected: "a b"},
		{input: "", expected: ""},
	}
	for _, row := range table {
		require.Equal(t, row.expected, CleanText(row.input))
	}
}

func TestGetAnchors(t *testing.T) {
	doc := parse(t)
	base, err := url.Parse("https://moodle.example.edu/my/")
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), base, doc.Find("a"))
	diff := cmp.Diff([]Anchor{
		{Name: "Intro to Go", Href: "https://moodle.example.edu/course/view.php?id=4"},
		{Name: "Other", Href: "https://other.example.com/x"},
	}, anchors)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestCSSPathIsUnique(t *testing.T) {
	doc := parse(t)

	for _, sel := range []string{"input[name=b]", "input[name=a]", "a", "#pw", "span"} {
		node := doc.Find(sel).First()
		path := CSSPath(node.Nodes[0])

		matched := doc.Find(path)
		require.Equal(t, 1, matched.Length(), "selector %q from %q", path, sel)
		require.Same(t, node.Nodes[0], matched.Nodes[0])
	}

	require.Equal(t, "#pw", CSSPath(doc.Find("#pw").Nodes[0]))
}
