// Package ohlc builds OHLC candles from stored ticks at query time.
// There is no background aggregation job: every call re-walks the raw
// tick tail for the requested market and buckets it fresh, trading a
// bounded amount of CPU per query for a zero-maintenance pipeline.
package ohlc

import (
	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

const (
	minIntervalSec  = 10
	maxIntervalSec  = 86400
	maxTicksFetched = 5000
)

// ClampInterval confines an interval_sec query param to [10, 86400].
func ClampInterval(sec int) int {
	if sec < minIntervalSec {
		return minIntervalSec
	}
	if sec > maxIntervalSec {
		return maxIntervalSec
	}
	return sec
}

// Build returns up to `limit` candles for market at the given bucket
// width, ascending by bucket start. An unknown or quiet market yields
// an empty slice, never an error.
func Build(db *store.Store, market string, intervalSec, limit int) ([]models.Candle, error) {
	interval := ClampInterval(intervalSec)

	ticks, err := db.TicksForMarket(market, maxTicksFetched)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return []models.Candle{}, nil
	}

	candles := bucketize(ticks, interval)
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// bucketize walks ticks in ascending time order (the order TicksForMarket
// already returns them in) and folds each into its bucket's O/H/L/C.
func bucketize(ticks []models.Tick, intervalSec int) []models.Candle {
	out := make([]models.Candle, 0, len(ticks))
	var cur *models.Candle
	var curBucket int64

	for _, t := range ticks {
		bucket := (t.AtEpoch / int64(intervalSec)) * int64(intervalSec)
		if cur == nil || bucket != curBucket {
			if cur != nil {
				out = append(out, *cur)
			}
			c := models.Candle{T: bucket, O: t.Price, H: t.Price, L: t.Price, C: t.Price}
			cur = &c
			curBucket = bucket
			continue
		}
		if t.Price > cur.H {
			cur.H = t.Price
		}
		if t.Price < cur.L {
			cur.L = t.Price
		}
		cur.C = t.Price
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
