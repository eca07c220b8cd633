package forecast

import (
	"testing"
	"time"
)

func TestAssemble_TimestampsAndRounding(t *testing.T) {
	seq := &Sequence{
		Origin:   t0.Add(9 * time.Hour),
		Interval: time.Hour,
		Targets:  []string{"pm25", "temp"},
		Values:   [][]float64{{10.004, 25.556}, {11.126, -0.006}, {12, 26.1}},
	}

	f := Assemble(seq)
	if len(f.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(f.Points))
	}
	for i, p := range f.Points {
		want := seq.Origin.Add(time.Duration(i+1) * time.Hour)
		if !p.Timestamp.Equal(want) {
			t.Errorf("point %d timestamp = %s, want %s", i, p.Timestamp, want)
		}
	}
	wantValues := [][]float64{{10, 25.56}, {11.13, -0.01}, {12, 26.1}}
	for i := range wantValues {
		for j := range wantValues[i] {
			if f.Points[i].Values[j] != wantValues[i][j] {
				t.Errorf("point %d %s = %v, want %v", i, f.Columns[j], f.Points[i].Values[j], wantValues[i][j])
			}
		}
	}
	if seq.Values[0][0] != 10.004 {
		t.Error("Assemble modified the sequence")
	}
}

func TestForecast_Records(t *testing.T) {
	f := Assemble(&Sequence{
		Origin:   t0,
		Interval: time.Hour,
		Targets:  []string{"pm25"},
		Values:   [][]float64{{1}, {2}},
	})

	recs := f.Records("timestamp")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["timestamp"] != "2025-04-07T01:00:00Z" || recs[1]["timestamp"] != "2025-04-07T02:00:00Z" {
		t.Errorf("unexpected timestamps %v, %v", recs[0]["timestamp"], recs[1]["timestamp"])
	}
	if recs[1]["pm25"] != 2.0 {
		t.Errorf("expected pm25 2, got %v", recs[1]["pm25"])
	}
	if _, ok := f.Render(FormatRecords, "time").([]map[string]any); !ok {
		t.Error("Render(records) should return records")
	}
}

func TestForecast_Keyed(t *testing.T) {
	f := Assemble(&Sequence{
		Origin:   t0,
		Interval: time.Hour,
		Targets:  []string{"pm25", "pm10"},
		Values:   [][]float64{{1, 3}, {2, 4}},
	})

	keyed, ok := f.Render(FormatKeyed, "time").(map[string]map[string]float64)
	if !ok {
		t.Fatalf("Render(keyed) returned %T", f.Render(FormatKeyed, "time"))
	}
	if len(keyed) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keyed))
	}
	if got := keyed["2025-04-07T02:00:00Z"]["pm10"]; got != 4 {
		t.Errorf("expected pm10 4 at 02:00, got %v", got)
	}
}
