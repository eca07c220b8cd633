package adapters

import (
	"testing"
	"time"
)

func TestNew_HTTP(t *testing.T) {
	config := map[string]string{
		"url":          "http://api:8080/{{.Dataset}}",
		"rowsPath":     "data",
		"headers":      `{"X-Api-Key": "k"}`,
		"fields":       `{"pm25": "pm2_5"}`,
		"templateVars": `{"Token": "t"}`,
		"lookback":     "72h",
	}

	src, err := New("http", config, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	httpSrc, ok := src.(*HTTPSource)
	if !ok {
		t.Fatalf("expected *HTTPSource, got %T", src)
	}
	if httpSrc.Method != "GET" {
		t.Errorf("Method = %s, want default GET", httpSrc.Method)
	}
	if httpSrc.TimestampFormat != "rfc3339" {
		t.Errorf("TimestampFormat = %s, want default rfc3339", httpSrc.TimestampFormat)
	}
	if httpSrc.Headers["X-Api-Key"] != "k" || httpSrc.Fields["pm25"] != "pm2_5" || httpSrc.TemplateVars["Token"] != "t" {
		t.Errorf("JSON maps not decoded: %+v", httpSrc)
	}
	if httpSrc.Lookback != 72*time.Hour {
		t.Errorf("Lookback = %s, want 72h", httpSrc.Lookback)
	}
}

func TestNew_Postgres(t *testing.T) {
	src, err := New("postgres", map[string]string{}, &fakeQuerier{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	pg, ok := src.(*PostgresSource)
	if !ok {
		t.Fatalf("expected *PostgresSource, got %T", src)
	}
	if pg.lookback != DefaultLookback {
		t.Errorf("lookback = %s, want default %s", pg.lookback, DefaultLookback)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		config map[string]string
		db     Querier
	}{
		{"unknown kind", "influx", nil, nil},
		{"postgres without db", "postgres", nil, nil},
		{"http missing url", "http", map[string]string{"rowsPath": "data"}, nil},
		{"http missing rows path", "http", map[string]string{"url": "http://x"}, nil},
		{"http bad headers", "http", map[string]string{"url": "http://x", "rowsPath": "data", "headers": "{"}, nil},
		{"http bad format", "http", map[string]string{"url": "http://x", "rowsPath": "data", "timestampFormat": "iso"}, nil},
		{"bad lookback", "memory", map[string]string{"lookback": "a week"}, nil},
		{"negative lookback", "memory", map[string]string{"lookback": "-1h"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.kind, tt.config, tt.db); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
