package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

// RemoteNetwork delegates sequence inference to an external HTTP service.
// Training is owned by the remote side.
//
// Request body:
//
//	{"columns": [...], "targets": [...], "window": [[...], ...]}
//
// The scaled predictions are read from the response with a gjson path
// (default "predictions").
type RemoteNetwork struct {
	Endpoint string   `json:"endpoint"`
	Path     string   `json:"path"`
	Columns  []string `json:"columns"`
	Targets  []string `json:"targets"`

	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

type remoteRequest struct {
	Columns []string    `json:"columns"`
	Targets []string    `json:"targets"`
	Window  [][]float64 `json:"window"`
}

// NewRemoteNetwork creates a network served at endpoint. columns and targets
// are forwarded so the service can check it was trained on the same layout.
func NewRemoteNetwork(endpoint, path string, columns, targets []string) *RemoteNetwork {
	if path == "" {
		path = "predictions"
	}
	n := &RemoteNetwork{Endpoint: endpoint, Path: path, Columns: columns, Targets: targets}
	n.init()
	return n
}

func (n *RemoteNetwork) init() {
	n.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}
	n.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-network",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// Name returns the network identifier.
func (n *RemoteNetwork) Name() string {
	return "remote"
}

// Fit is a no-op since the remote service is trained out of band.
func (n *RemoteNetwork) Fit(ctx context.Context, windows [][][]float64, y [][]float64) error {
	return nil
}

// Predict posts the scaled window and returns the scaled predictions.
func (n *RemoteNetwork) Predict(ctx context.Context, window [][]float64) ([]float64, error) {
	if len(window) == 0 {
		return nil, errors.New("remote: window cannot be empty")
	}
	if n.circuit == nil {
		n.init()
	}

	body, err := json.Marshal(remoteRequest{Columns: n.Columns, Targets: n.Targets, Window: window})
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	result, err := n.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(msg))
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	raw, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("remote: unexpected result type %T", result)
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("remote: invalid JSON response")
	}
	field := gjson.GetBytes(raw, n.Path)
	if !field.IsArray() {
		return nil, fmt.Errorf("remote: path %q is not an array", n.Path)
	}

	var out []float64
	for _, v := range field.Array() {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("remote: non-numeric prediction %q", v.Raw)
		}
		out = append(out, v.Float())
	}
	if len(out) != len(n.Targets) {
		return nil, fmt.Errorf("remote: expected %d predictions, got %d", len(n.Targets), len(out))
	}
	return out, nil
}
