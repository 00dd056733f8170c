// Package bootstrap loads the process-wide collaborators needed before any
// request session can start.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/config"
)

// newBackOff returns the retry schedule for transient load failures.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// Sources resolves the configured table locations, falling back to the
// embedded tables for empty paths.
func Sources(cfg config.Capabilities) (sigs, sizes capability.Source) {
	sigs, sizes = capability.EmbeddedSignatures(), capability.EmbeddedKeySizes()
	if cfg.SignaturesCSV != "" {
		sigs = capability.FileSource(cfg.SignaturesCSV)
	}
	if cfg.KeySizesCSV != "" {
		sizes = capability.FileSource(cfg.KeySizesCSV)
	}
	return sigs, sizes
}

// LoadRegistry builds the algorithm capability registry within
// cfg.LoadTimeout. Unreadable sources are retried up to cfg.RetryAttempts
// times; malformed tables fail immediately. The outcome is recorded in the
// audit log, and an audit failure fails the load.
func LoadRegistry(ctx context.Context, cfg config.Capabilities) (*capability.Registry, error) {
	sigs, sizes := Sources(cfg)
	source := sigs.Name + "," + sizes.Name

	if cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.LoadTimeout)
		defer cancel()
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	start := time.Now()
	reg, err := loadWithRetry(ctx, sigs, sizes, attempts)

	count := 0
	if reg != nil {
		count = len(reg.KeyPairAlgorithms())
	}
	if auditErr := audit.LogRegistryLoaded(source, count, err); auditErr != nil {
		return nil, auditErr
	}
	if err != nil {
		log.Error().Err(err).Str("source", source).Msg("capability registry load failed")
		return nil, fmt.Errorf("failed to load capability registry: %w", err)
	}

	log.Info().
		Str("source", source).
		Int("keypair_algorithms", count).
		Dur("elapsed", time.Since(start)).
		Msg("capability registry loaded")
	return reg, nil
}

type loadResult struct {
	reg *capability.Registry
	err error
}

func loadWithRetry(ctx context.Context, sigs, sizes capability.Source, attempts uint) (*capability.Registry, error) {
	op := func() (*capability.Registry, error) {
		reg, err := capability.Load(sigs, sizes)
		if err != nil {
			if !Transient(err) {
				return nil, backoff.Permanent(err)
			}
			log.Warn().Err(err).Msg("capability source unavailable, retrying")
			return nil, err
		}
		return reg, nil
	}

	done := make(chan loadResult, 1)
	go func() {
		reg, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(newBackOff()),
			backoff.WithMaxTries(attempts),
		)
		done <- loadResult{reg: reg, err: err}
	}()

	select {
	case res := <-done:
		return res.reg, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("capability load timed out: %w", ctx.Err())
	}
}

// Transient reports whether a load error may succeed on retry. Only
// failures to open a source qualify; parse errors never do.
func Transient(err error) bool {
	var dle *capability.DataLoadError
	if !errors.As(err, &dle) || dle.Line > 0 {
		return false
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}
	return !strings.HasPrefix(dle.Source, "embedded:")
}
