package webservice

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// ProbeServices are the service names worth trying on a site whose
// administrators renamed or replaced the mobile app service.
var ProbeServices = []string{DefaultService, "moodle_mobile", "external_api", "webservice"}

type ProbeResult struct {
	Service string
	Err     error
}

func (r ProbeResult) OK() bool {
	return r.Err == nil
}

// Probe attempts a token exchange for every service in order and reports the
// outcome of each. The client keeps the token of the last successful one.
func (c *Client) Probe(ctx context.Context, username, password string, services []string) []ProbeResult {
	results := make([]ProbeResult, 0, len(services))
	for _, service := range services {
		_, err := c.Exchange(ctx, username, password, service)
		results = append(results, ProbeResult{Service: service, Err: err})
	}
	return results
}

// LoginPage fetches and parses the html login page.
func (c *Client) LoginPage(ctx context.Context) (*goquery.Document, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html").
		Get("/login/index.php")
	if err != nil {
		return nil, fmt.Errorf("get login page: %w", err)
	}
	if res.IsError() {
		return nil, &StatusError{Endpoint: "/login/index.php", StatusCode: res.StatusCode(), Status: res.Status()}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	return doc, nil
}
