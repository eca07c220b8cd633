package models

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

type stubNetwork struct {
	out  []float64
	err  error
	seen [][]float64
}

func (s *stubNetwork) Name() string { return "stub" }

func (s *stubNetwork) Fit(ctx context.Context, windows [][][]float64, y [][]float64) error {
	return nil
}

func (s *stubNetwork) Predict(ctx context.Context, window [][]float64) ([]float64, error) {
	s.seen = window
	return s.out, s.err
}

// indoorTable has an extra column the scaler does not cover.
func indoorTable(t *testing.T, n int) *timeseries.Table {
	t.Helper()
	tbl := timeseries.NewTable("pm25", "temp", "door_open")
	for i := range n {
		_ = tbl.Append(t0.Add(time.Duration(i)*time.Hour), float64(i+1), float64(20+i%3), float64(i%2))
	}
	return tbl
}

func TestSequenceModel_PredictOnePipeline(t *testing.T) {
	ctx := context.Background()
	ds := dataset(t, indoorTable(t, 20), 3, "pm25")

	net := &stubNetwork{out: []float64{0.5}}
	m, err := NewSequenceModel([]string{"temp", "pm25"}, []string{"pm25"}, net)
	if err != nil {
		t.Fatalf("NewSequenceModel() error = %v", err)
	}
	if err := m.Fit(ctx, ds); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// window rows span table rows 0..18, so pm25 scales over [1, 19]
	got, err := m.PredictOne(ctx, vectorAt(ds, ds.Len()-1))
	if err != nil {
		t.Fatalf("PredictOne() error = %v", err)
	}
	if v, _ := got.Get("pm25"); math.Abs(v-10) > 1e-9 {
		t.Errorf("pm25 = %v, want 10", v)
	}

	if len(net.seen) != 3 {
		t.Fatalf("network saw %d rows, want 3", len(net.seen))
	}
	for _, row := range net.seen {
		if len(row) != 2 {
			t.Fatalf("network row width = %d, want 2 scaler columns", len(row))
		}
		for _, v := range row {
			if v < 0 || v > 1 {
				t.Errorf("network input %v not scaled into [0,1]", v)
			}
		}
	}
	// oldest first: pm25 of the last window is 17, 18, 19
	if net.seen[0][1] >= net.seen[2][1] {
		t.Errorf("window not ordered oldest first: %v", net.seen)
	}
}

func TestSequenceModel_LinearNetwork(t *testing.T) {
	ctx := context.Background()
	ds := dataset(t, indoorTable(t, 40), 3, "pm25")

	m, err := NewSequenceModel([]string{"pm25", "temp"}, []string{"pm25"}, NewLinearNetwork(1e-6))
	if err != nil {
		t.Fatalf("NewSequenceModel() error = %v", err)
	}
	if err := m.Fit(ctx, ds); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	for _, i := range []int{0, 15, ds.Len() - 1} {
		got, err := m.PredictOne(ctx, vectorAt(ds, i))
		if err != nil {
			t.Fatalf("PredictOne() error = %v", err)
		}
		if v, _ := got.Get("pm25"); math.Abs(v-ds.Y[i][0]) > 0.1 {
			t.Errorf("pair %d pm25 = %v, want ~%v", i, v, ds.Y[i][0])
		}
	}
}

func TestSequenceModel_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewSequenceModel([]string{"temp"}, []string{"pm25"}, &stubNetwork{})
	var sm *timeseries.SchemaMismatchError
	if !errors.As(err, &sm) {
		t.Errorf("target outside scaler columns error = %v, want SchemaMismatchError", err)
	}

	ds := dataset(t, indoorTable(t, 20), 3, "pm25")
	m, _ := NewSequenceModel([]string{"humidity", "pm25"}, []string{"pm25"}, &stubNetwork{out: []float64{0}})
	if err := m.Fit(ctx, ds); !errors.As(err, &sm) {
		t.Errorf("Fit() with unknown scaler column error = %v, want SchemaMismatchError", err)
	}

	m, _ = NewSequenceModel([]string{"pm25"}, []string{"pm25"}, &stubNetwork{out: []float64{0}})
	if _, err := m.PredictOne(ctx, vectorAt(ds, 0)); !errors.Is(err, ErrNotFitted) {
		t.Errorf("PredictOne() before Fit error = %v, want ErrNotFitted", err)
	}

	failing := &stubNetwork{err: errors.New("boom")}
	m, _ = NewSequenceModel([]string{"pm25"}, []string{"pm25"}, failing)
	if err := m.Fit(ctx, ds); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	_, err = m.PredictOne(ctx, vectorAt(ds, 0))
	var mf *timeseries.ModelFailure
	if !errors.As(err, &mf) {
		t.Errorf("network failure error = %v, want ModelFailure", err)
	}

	short := &stubNetwork{out: []float64{}}
	m, _ = NewSequenceModel([]string{"pm25"}, []string{"pm25"}, short)
	_ = m.Fit(ctx, ds)
	if _, err := m.PredictOne(ctx, vectorAt(ds, 0)); !errors.As(err, &mf) {
		t.Errorf("short network output error = %v, want ModelFailure", err)
	}
}

func TestRemoteNetwork_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Window) != 3 || len(req.Targets) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"lstm","output":{"predictions":[0.25]}}`))
	}))
	defer server.Close()

	n := NewRemoteNetwork(server.URL, "output.predictions", []string{"pm25"}, []string{"pm25"})
	got, err := n.Predict(context.Background(), [][]float64{{0.1}, {0.2}, {0.3}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(got) != 1 || got[0] != 0.25 {
		t.Errorf("Predict() = %v, want [0.25]", got)
	}
}

func TestRemoteNetwork_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, `{"error":"down"}`},
		{"invalid json", http.StatusOK, `not json`},
		{"missing path", http.StatusOK, `{"other":[1]}`},
		{"wrong length", http.StatusOK, `{"predictions":[1,2]}`},
		{"non-numeric", http.StatusOK, `{"predictions":["x"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			n := NewRemoteNetwork(server.URL, "", []string{"pm25"}, []string{"pm25"})
			if _, err := n.Predict(context.Background(), [][]float64{{0.1}}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRemoteNetwork_FitIsNoop(t *testing.T) {
	n := NewRemoteNetwork("http://localhost:0", "", nil, nil)
	if err := n.Fit(context.Background(), nil, nil); err != nil {
		t.Errorf("Fit() should be a no-op, got %v", err)
	}
}
