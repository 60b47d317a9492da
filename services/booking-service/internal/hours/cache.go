package hours

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/model"
	"github.com/Alecxender1402/QuickCourt/services/booking-service/internal/timeslot"
)

// CachedRepository is a read-through Redis cache in front of a Repository.
// Replace writes through and drops the cached entry. Redis failures fall back to the inner
// repository so the cache never decides availability on its own.
type CachedRepository struct {
	inner  Repository
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedRepository(inner Repository, rdb *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "hours"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{inner: inner, rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

type cachedWindow struct {
	Day           int    `json:"day"`
	Open          int    `json:"open"`
	Close         int    `json:"close"`
	IsOpen        bool   `json:"is_open"`
	EffectiveFrom string `json:"effective_from,omitempty"`
	EffectiveTo   string `json:"effective_to,omitempty"`
}

func (c *CachedRepository) key(target Target) string {
	return c.prefix + ":" + target.String()
}

func (c *CachedRepository) List(ctx context.Context, target Target) ([]model.OperatingWindow, error) {
	raw, err := c.rdb.Get(ctx, c.key(target)).Bytes()
	switch {
	case err == nil:
		wins, decodeErr := decodeWindows(raw)
		if decodeErr == nil {
			return wins, nil
		}
		c.logger.Warn("hours cache decode failed", "target", target.String(), "err", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("hours cache read failed", "target", target.String(), "err", err)
	}

	wins, err := c.inner.List(ctx, target)
	if err != nil {
		return nil, err
	}
	if payload, err := encodeWindows(wins); err == nil {
		if err := c.rdb.Set(ctx, c.key(target), payload, c.ttl).Err(); err != nil {
			c.logger.Warn("hours cache write failed", "target", target.String(), "err", err)
		}
	}
	return wins, nil
}

func (c *CachedRepository) Replace(ctx context.Context, target Target, windows []model.OperatingWindow) error {
	if err := c.inner.Replace(ctx, target, windows); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, c.key(target)).Err(); err != nil {
		c.logger.Error("hours cache invalidation failed", "target", target.String(), "err", err)
	}
	return nil
}

func encodeWindows(wins []model.OperatingWindow) ([]byte, error) {
	out := make([]cachedWindow, 0, len(wins))
	for _, w := range wins {
		cw := cachedWindow{
			Day:    int(w.DayOfWeek),
			Open:   w.OpenTime.Minutes(),
			Close:  w.CloseTime.Minutes(),
			IsOpen: w.IsOpen,
		}
		if w.EffectiveFrom != nil {
			cw.EffectiveFrom = w.EffectiveFrom.String()
		}
		if w.EffectiveTo != nil {
			cw.EffectiveTo = w.EffectiveTo.String()
		}
		out = append(out, cw)
	}
	return json.Marshal(out)
}

func decodeWindows(raw []byte) ([]model.OperatingWindow, error) {
	var in []cachedWindow
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]model.OperatingWindow, 0, len(in))
	for _, cw := range in {
		w := model.OperatingWindow{
			DayOfWeek: time.Weekday(cw.Day),
			OpenTime:  timeslot.TimeOfDay(cw.Open),
			CloseTime: timeslot.TimeOfDay(cw.Close),
			IsOpen:    cw.IsOpen,
		}
		if cw.EffectiveFrom != "" {
			d, err := timeslot.ParseDate(cw.EffectiveFrom)
			if err != nil {
				return nil, err
			}
			w.EffectiveFrom = &d
		}
		if cw.EffectiveTo != "" {
			d, err := timeslot.ParseDate(cw.EffectiveTo)
			if err != nil {
				return nil, err
			}
			w.EffectiveTo = &d
		}
		out = append(out, w)
	}
	return out, nil
}
