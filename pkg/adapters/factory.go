package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// New creates a source based on kind and a generic configuration map.
//
// Supported kinds:
//   - "postgres": reads the archive tables through db
//   - "http": generic JSON API
//   - "memory": empty in-memory source
//
// Every kind accepts "lookback" as a Go duration string.
func New(kind string, config map[string]string, db Querier) (Source, error) {
	lookback, err := parseLookback(config["lookback"])
	if err != nil {
		return nil, err
	}

	switch kind {
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres source requires a database connection")
		}
		return NewPostgresSource(db, lookback), nil
	case "http":
		return newHTTP(config, lookback)
	case "memory":
		return NewMemorySource(), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be postgres, http, or memory)", kind)
	}
}

func parseLookback(v string) (time.Duration, error) {
	if v == "" {
		return DefaultLookback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid 'lookback': %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid 'lookback': must be > 0, got %s", d)
	}
	return d, nil
}

// newHTTP creates an HTTP source from generic config.
func newHTTP(config map[string]string, lookback time.Duration) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}
	rowsPath := config["rowsPath"]
	if rowsPath == "" {
		return nil, fmt.Errorf("http source requires 'rowsPath' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	headers, err := jsonMap(config, "headers")
	if err != nil {
		return nil, err
	}
	fields, err := jsonMap(config, "fields")
	if err != nil {
		return nil, err
	}
	templateVars, err := jsonMap(config, "templateVars")
	if err != nil {
		return nil, err
	}

	src := &HTTPSource{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		RowsPath:        rowsPath,
		TimestampField:  config["timestampField"],
		TimestampFormat: timestampFormat,
		Fields:          fields,
		Lookback:        lookback,
		TemplateVars:    templateVars,
	}
	if err := src.ValidateConfig(); err != nil {
		return nil, err
	}
	return src, nil
}

func jsonMap(config map[string]string, key string) (map[string]string, error) {
	raw := config[key]
	if raw == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid '%s' JSON: %w", key, err)
	}
	return out, nil
}
