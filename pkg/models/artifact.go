package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Phantawat/BreatheEasy/pkg/features"
)

// ErrUnknownArtifact is returned by Unmarshal for an unrecognised kind.
var ErrUnknownArtifact = errors.New("unknown artifact kind")

// Artifact is the persisted envelope of a fitted predictor. Layout and
// Targets are kept outside the payload so a loader can check them against
// request-time history without decoding the model.
type Artifact struct {
	Kind    string          `json:"kind"`
	Layout  features.Layout `json:"layout"`
	Targets []string        `json:"targets"`
	Payload json.RawMessage `json:"payload"`
}

type ensemblePayload struct {
	Config   EnsembleConfig `json:"config"`
	Boosters []*booster     `json:"boosters"`
}

type sequencePayload struct {
	Columns []string        `json:"columns"`
	Scaler  *MinMaxScaler   `json:"scaler"`
	Network string          `json:"network"`
	Weights json.RawMessage `json:"weights"`
}

type baselinePayload struct {
	Damping []float64 `json:"damping"`
}

// Marshal encodes a fitted predictor.
func Marshal(p Predictor) ([]byte, error) {
	var (
		kind    string
		payload any
	)
	switch m := p.(type) {
	case *EnsembleModel:
		if m.boosters == nil {
			return nil, fmt.Errorf("marshal %s: %w", m.Name(), ErrNotFitted)
		}
		kind, payload = "ensemble", ensemblePayload{Config: m.cfg, Boosters: m.boosters}
	case *SequenceModel:
		if m.colIdx == nil {
			return nil, fmt.Errorf("marshal %s: %w", m.Name(), ErrNotFitted)
		}
		weights, err := json.Marshal(m.net)
		if err != nil {
			return nil, fmt.Errorf("marshal %s network: %w", m.Name(), err)
		}
		kind, payload = "sequence", sequencePayload{Columns: m.columns, Scaler: m.scaler, Network: m.net.Name(), Weights: weights}
	case *BaselineModel:
		if m.Damping == nil {
			return nil, fmt.Errorf("marshal %s: %w", m.Name(), ErrNotFitted)
		}
		kind, payload = "baseline", baselinePayload{Damping: m.Damping}
	default:
		return nil, fmt.Errorf("marshal %T: %w", p, ErrUnknownArtifact)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Artifact{Kind: kind, Layout: p.Layout(), Targets: p.Targets(), Payload: raw})
}

// DecodeArtifact decodes only the envelope.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Layout.Lags < 1 || len(a.Layout.Columns) == 0 || len(a.Targets) == 0 {
		return nil, fmt.Errorf("decode artifact: incomplete layout %+v targets %v", a.Layout, a.Targets)
	}
	return &a, nil
}

// Unmarshal decodes a predictor encoded by Marshal.
func Unmarshal(data []byte) (Predictor, error) {
	a, err := DecodeArtifact(data)
	if err != nil {
		return nil, err
	}

	switch a.Kind {
	case "ensemble":
		var p ensemblePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode ensemble: %w", err)
		}
		if len(p.Boosters) != len(a.Targets) {
			return nil, fmt.Errorf("decode ensemble: %d boosters for %d targets", len(p.Boosters), len(a.Targets))
		}
		return &EnsembleModel{cfg: p.Config, layout: a.Layout, targets: a.Targets, boosters: p.Boosters}, nil

	case "sequence":
		var p sequencePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode sequence: %w", err)
		}
		net, err := decodeNetwork(p.Network, p.Weights)
		if err != nil {
			return nil, err
		}
		m, err := NewSequenceModel(p.Columns, a.Targets, net)
		if err != nil {
			return nil, err
		}
		if p.Scaler == nil || !slices.Equal(p.Scaler.Columns, p.Columns) {
			return nil, errors.New("decode sequence: scaler columns do not match model columns")
		}
		m.scaler = p.Scaler
		if m.colIdx, err = m.bind(a.Layout); err != nil {
			return nil, err
		}
		m.layout = a.Layout
		return m, nil

	case "baseline":
		var p baselinePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode baseline: %w", err)
		}
		if len(p.Damping) != len(a.Targets) {
			return nil, fmt.Errorf("decode baseline: %d factors for %d targets", len(p.Damping), len(a.Targets))
		}
		return &BaselineModel{layout: a.Layout, targets: a.Targets, Damping: p.Damping}, nil
	}
	return nil, fmt.Errorf("decode %q: %w", a.Kind, ErrUnknownArtifact)
}

func decodeNetwork(kind string, raw json.RawMessage) (Network, error) {
	switch kind {
	case "linear":
		n := &LinearNetwork{}
		if err := json.Unmarshal(raw, n); err != nil {
			return nil, fmt.Errorf("decode linear network: %w", err)
		}
		if n.Weights == nil {
			return nil, fmt.Errorf("decode linear network: %w", ErrNotFitted)
		}
		return n, nil
	case "remote":
		var n RemoteNetwork
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode remote network: %w", err)
		}
		return NewRemoteNetwork(n.Endpoint, n.Path, n.Columns, n.Targets), nil
	}
	return nil, fmt.Errorf("decode network %q: %w", kind, ErrUnknownArtifact)
}
