package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// HTTPSource pulls readings from any REST API returning JSON and extracts
// one row per array element using gjson paths.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Templates in URL, Body and Headers: {{.Dataset}}, {{.Start}}, {{.End}},
//     {{.StartRFC3339}}, {{.EndRFC3339}}, {{.LookbackSeconds}} plus TemplateVars
//   - Column values read from each element by column name, or by the path in Fields
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for a weather API:
//
//	src := &HTTPSource{
//	    URL:            "https://api.example.com/readings/{{.Dataset}}",
//	    RowsPath:       "data",
//	    TimestampField: "ts",
//	    Fields:         map[string]string{"pm25": "components.pm2_5"},
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers. Values may use template variables.
	Headers map[string]string

	// Body is the request body template.
	Body string

	// RowsPath is the gjson path to the array of readings (required).
	RowsPath string

	// TimestampField is the gjson path of the timestamp inside each element.
	// Defaults to "ts".
	TimestampField string

	// TimestampFormat is one of "rfc3339" (default), "unix", "unix_milli".
	TimestampFormat string

	// Fields overrides the element path of a column. Columns not listed are
	// read from the field of the same name.
	Fields map[string]string

	// Lookback bounds the requested window. Defaults to DefaultLookback.
	Lookback time.Duration

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in templates.
	TemplateVars map[string]string

	now func() time.Time
}

func (h *HTTPSource) Name() string { return "http" }

// Query implements Source.
func (h *HTTPSource) Query(ctx context.Context, dataset string) (*timeseries.Table, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	schema, err := Columns(dataset)
	if err != nil {
		return nil, err
	}

	body, err := h.fetch(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("http source: response is not valid JSON")
	}

	items := gjson.GetBytes(body, h.RowsPath)
	if !items.Exists() || !items.IsArray() {
		return nil, fmt.Errorf("rows path %q not found or not an array", h.RowsPath)
	}

	tsField := h.TimestampField
	if tsField == "" {
		tsField = "ts"
	}

	var readings []reading
	for i, item := range items.Array() {
		ts, err := h.parseTimestamp(item.Get(tsField))
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		values := make([]float64, len(schema))
		for c, col := range schema {
			v := item.Get(h.fieldPath(col))
			if v.Type != gjson.Number {
				values[c] = math.NaN()
				continue
			}
			values[c] = v.Float()
		}
		readings = append(readings, reading{ts: ts, values: values})
	}

	return hourly(schema, readings)
}

func (h *HTTPSource) fieldPath(column string) string {
	if p, ok := h.Fields[column]; ok && p != "" {
		return p
	}
	return column
}

func (h *HTTPSource) fetch(ctx context.Context, dataset string) ([]byte, error) {
	lookback := h.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	clock := h.now
	if clock == nil {
		clock = time.Now
	}
	end := clock().UTC().Truncate(time.Second)
	start := end.Add(-lookback)

	templateData := map[string]any{
		"Dataset":         dataset,
		"LookbackSeconds": int(lookback.Seconds()),
		"Start":           start.Unix(),
		"End":             end.Unix(),
		"StartRFC3339":    start.Format(time.RFC3339),
		"EndRFC3339":      end.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	url, err := renderTemplate(h.URL, templateData)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return respBody, nil
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	if !value.Exists() {
		return time.Time{}, errors.New("timestamp missing")
	}
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())

	case "unix":
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the source configuration is valid
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.RowsPath == "" {
		return errors.New("rowsPath is required")
	}

	validFormats := map[string]bool{
		"":           true,
		"rfc3339":    true,
		"unix":       true,
		"unix_milli": true,
	}
	if !validFormats[h.TimestampFormat] {
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}
