// Package webservice talks to the moodle web services api: a token is issued
// by login/token.php and every function is called through the single REST
// entry point.
package webservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"moodlesync/internal/components/assert"
	"moodlesync/internal/components/telemetry"
	"moodlesync/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_exchange = "client.exchange"
	report_client_call     = "client.call"
)

const (
	DefaultService = "moodle_mobile_app"

	tokenPath = "/login/token.php"
	restPath  = "/webservice/rest/server.php"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

var ErrNoToken = errors.New("no web service token, call Exchange first")

type ClientOptions struct {
	BaseUrl string
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// Output receives dumps of failed exchanges, it may be nil.
	Output restyutil.InstrumentOutput
	// RequestsPerSecond defaults to 2.
	RequestsPerSecond rate.Limit
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	mu    sync.Mutex
	token string
	tel   telemetry.API
}

func NewClient(opts ClientOptions) (*Client, error) {
	assert.NotEmptyStr("base url", opts.BaseUrl)
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 2
	}
	tel := telemetry.NewScopedAPI("moodle_webservice", opts.Telemetry)

	baseUrl := strings.TrimRight(opts.BaseUrl, "/")
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetHeader("accept", "application/json")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(time.Second * 30)

	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(opts.RequestsPerSecond, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, "webservice-", nil, opts.Output)

	return &Client{
		BaseUrl: parsedBaseUrl,
		Http:    httpClient,
		tel:     tel,
	}, nil
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Exchange trades a username and password for a token of the given service
// and keeps it for every later Call. There is no refresh, a revoked token
// surfaces as an APIError on the next call.
func (c *Client) Exchange(ctx context.Context, username, password, service string) (string, error) {
	if service == "" {
		service = DefaultService
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": username,
			"password": password,
			"service":  service,
		}).
		Post(tokenPath)
	if err != nil {
		c.tel.ReportBroken(report_client_exchange, err, service)
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if res.IsError() {
		return "", &StatusError{Endpoint: tokenPath, StatusCode: res.StatusCode(), Status: res.Status()}
	}

	var body struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
		DebugInfo string `json:"debuginfo"`
	}
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		c.tel.ReportBroken(report_client_exchange, fmt.Errorf("decode response: %w", err), service)
		return "", fmt.Errorf("token exchange: decode response: %w", err)
	}
	if body.Error != "" || body.ErrorCode != "" {
		return "", &TokenError{
			ErrorCode: body.ErrorCode,
			Message:   body.Error,
			DebugInfo: body.DebugInfo,
		}
	}
	if body.Token == "" {
		return "", &TokenError{Message: "response did not contain a token"}
	}

	c.SetToken(body.Token)
	c.tel.ReportDebug("token issued", service)
	return body.Token, nil
}

type exceptionBody struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
	DebugInfo string `json:"debuginfo"`
}

// decodeException returns the APIError carried by body, if any. Functions
// that succeed may return arrays, scalars or null so only objects are
// checked.
func decodeException(function string, body []byte) *APIError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var probe exceptionBody
	if json.Unmarshal(trimmed, &probe) != nil || probe.Exception == "" {
		return nil
	}
	return &APIError{
		Function:  function,
		Exception: probe.Exception,
		ErrorCode: probe.ErrorCode,
		Message:   probe.Message,
		DebugInfo: probe.DebugInfo,
	}
}

// Call invokes a web service function and decodes its result into out, out
// may be nil when the result is not needed.
func (c *Client) Call(ctx context.Context, function string, params url.Values, out any) error {
	token := c.Token()
	if token == "" {
		return ErrNoToken
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("wstoken", token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(restPath)
	if err != nil {
		c.tel.ReportBroken(report_client_call, err, function)
		return fmt.Errorf("%s: %w", function, err)
	}
	if res.IsError() {
		return &StatusError{Endpoint: function, StatusCode: res.StatusCode(), Status: res.Status()}
	}

	body := res.Body()
	if apiErr := decodeException(function, body); apiErr != nil {
		c.tel.ReportWarning(report_client_call, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	err = json.Unmarshal(body, out)
	if err != nil {
		c.tel.ReportBroken(report_client_call, fmt.Errorf("decode response: %w", err), function)
		return fmt.Errorf("%s: decode response: %w", function, err)
	}
	return nil
}
