package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/forecast"
	"github.com/Phantawat/BreatheEasy/pkg/models"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
)

// trainer is the part of forecast.Service used to fit variants.
type trainer interface {
	Train(ctx context.Context, name string, store storage.Store) (string, models.Predictor, error)
}

// trainable lists the variants that carry a local model factory.
func trainable(variants []forecast.Variant) []string {
	var names []string
	for _, v := range variants {
		if !v.Direct() && v.Factory != nil {
			names = append(names, v.Name)
		}
	}
	return names
}

// selectVariants returns the requested names, or every trainable variant
// when none are given. Unknown or direct variants are rejected.
func selectVariants(variants []forecast.Variant, requested []string) ([]string, error) {
	all := trainable(variants)
	if len(requested) == 0 {
		return all, nil
	}
	known := make(map[string]bool, len(all))
	for _, name := range all {
		known[name] = true
	}
	for _, name := range requested {
		if !known[name] {
			return nil, fmt.Errorf("variant %q is not trainable (trainable: %v)", name, all)
		}
	}
	return requested, nil
}

// trainAll fits each variant in turn. A failing variant is logged and does
// not stop the others; all failures are returned joined.
func trainAll(ctx context.Context, svc trainer, store storage.Store, names []string, logger *slog.Logger, saved func(variant string)) (map[string]string, error) {
	ids := make(map[string]string, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		id, _, err := svc.Train(ctx, name, store)
		if err != nil {
			logger.Error("training failed", "variant", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		ids[name] = id
		if saved != nil {
			saved(name)
		}
		logger.Debug("variant trained", "variant", name, "artifact", id, "duration", time.Since(start))
	}
	return ids, errors.Join(errs...)
}

// writeDataset writes ds as CSV: the pair timestamp, every lag feature in
// layout order, then one target_<name> column per target.
func writeDataset(w io.Writer, ds *features.Dataset) error {
	cw := csv.NewWriter(w)

	header := append([]string{"timestamp"}, ds.Layout.Names()...)
	for _, t := range ds.Targets {
		header = append(header, "target_"+t)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i := range ds.X {
		record = record[:0]
		record = append(record, ds.Index[i].UTC().Format(time.RFC3339))
		for _, v := range ds.X[i] {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		for _, v := range ds.Y[i] {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
