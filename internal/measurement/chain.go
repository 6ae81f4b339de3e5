package measurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// Chain probes its adapters in order and measures with the first available one.
type Chain struct {
	adapters []Adapter
	logger   *zap.Logger
}

// NewChain builds a chain over adapters, tried in the given order.
func NewChain(logger *zap.Logger, adapters ...Adapter) *Chain {
	return &Chain{adapters: adapters, logger: logging.OrNop(logger)}
}

// Resolve measures req. Probe failures are logged and skipped. When no
// adapter is available the error is ServiceUnavailable carrying every probe
// failure. A failed Measure is returned as ExternalService and is not
// retried on the next adapter.
func (c *Chain) Resolve(ctx context.Context, req Request) (roof.Measurement, error) {
	if err := req.Validate(); err != nil {
		return roof.Measurement{}, err
	}

	var probeErrs []error
	for _, a := range c.adapters {
		method := a.Method()
		ok, err := a.Available(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return roof.Measurement{}, fmt.Errorf("probe %s: %w", method, ctxErr)
			}
			c.logger.Warn("measurement probe failed", zap.String("method", string(method)), zap.Error(err))
			probeErrs = append(probeErrs, fmt.Errorf("%s: %w", method, err))
			continue
		}
		if !ok {
			c.logger.Debug("measurement source unavailable", zap.String("method", string(method)))
			probeErrs = append(probeErrs, fmt.Errorf("%s: unavailable", method))
			continue
		}

		m, err := a.Measure(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return roof.Measurement{}, fmt.Errorf("measure %s: %w", method, ctxErr)
			}
			return roof.Measurement{}, apperr.ExternalService(err, "%s measurement failed", method).
				With("method", string(method))
		}
		if err := validateMeasurement(m); err != nil {
			return roof.Measurement{}, apperr.ExternalService(err, "%s returned an unusable measurement", method).
				With("method", string(method))
		}
		m.Method = method
		if m.RequestID == "" {
			m.RequestID = uuid.NewString()
		}
		c.logger.Info("roof measured",
			zap.String("requestId", m.RequestID),
			zap.String("method", string(method)),
			zap.String("quality", string(m.Quality)),
			zap.Int("sections", len(m.Sections)))
		return m, nil
	}

	err := apperr.ServiceUnavailable(errors.Join(probeErrs...), "no measurement source available")
	if n := len(probeErrs); n > 0 {
		err = err.With("lastProbeError", probeErrs[n-1].Error())
	}
	return roof.Measurement{}, err
}

func validateMeasurement(m roof.Measurement) error {
	if len(m.Sections) == 0 {
		return errors.New("no sections")
	}
	for _, s := range m.Sections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
