package browser

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*.html
var fixtures embed.FS

func fixture(t *testing.T, name string) string {
	t.Helper()
	contents, err := fixtures.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(contents)
}

func fixtureDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture(t, name)))
	require.NoError(t, err)
	return doc
}

// fakePage serves fixture markup by url. Clicking a link navigates to its
// href, clicking anything else calls onSubmit with the filled values.
type fakePage struct {
	mu       sync.Mutex
	routes   map[string]string
	current  string
	fills    map[string]string
	clicks   []string
	onSubmit func(p *fakePage, selector string) string
	closed   int
	shots    int
}

func newFakePage(routes map[string]string) *fakePage {
	return &fakePage{routes: routes, fills: map[string]string{}}
}

func (p *fakePage) Navigate(_ context.Context, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.routes[target]; !ok {
		return fmt.Errorf("no route for %s", target)
	}
	p.current = target
	return nil
}

func (p *fakePage) Snapshot(context.Context) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{URL: p.current, HTML: p.routes[p.current]}, nil
}

func (p *fakePage) find(selector string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.routes[p.current]))
	if err != nil {
		return nil, err
	}
	found := doc.Find(selector)
	if found.Length() != 1 {
		return nil, fmt.Errorf("selector %q matched %d elements on %s", selector, found.Length(), p.current)
	}
	return found, nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.find(selector)
	if err != nil {
		return err
	}
	key := el.AttrOr("id", el.AttrOr("name", selector))
	p.fills[key] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.find(selector)
	if err != nil {
		return err
	}
	p.clicks = append(p.clicks, selector)
	if href, ok := el.Attr("href"); ok {
		base, _ := url.Parse(p.current)
		ref, err := url.Parse(href)
		if err != nil {
			return err
		}
		p.current = base.ResolveReference(ref).String()
		return nil
	}
	if p.onSubmit != nil {
		p.current = p.onSubmit(p, selector)
	}
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	return []byte("png"), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type memorySink struct {
	files map[string][]byte
}

func (m *memorySink) WriteFile(name string, data []byte) error {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return nil
}
