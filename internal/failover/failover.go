// Package failover implements credential selection and rotation around
// provider calls. One credential per (owner, provider) is marked
// selected; key-attributable failures rotate to the next credential in
// creation order, wrapping, until one succeeds or every eligible
// credential has been tried once.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/observability"
)

// QuarantineDuration is how long a rate-limited credential stays out of
// the candidate pool.
const QuarantineDuration = 5 * time.Minute

// Controller drives the rotation state machine against a credential
// store, logging lifecycle events as it goes.
type Controller struct {
	store    core.CredentialStore
	activity core.ActivityLogger
	metrics  *observability.Metrics
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Controller. activity may be a NopActivityLogger and
// metrics may be nil.
func New(store core.CredentialStore, activity core.ActivityLogger, metrics *observability.Metrics, logger *slog.Logger) *Controller {
	if activity == nil {
		activity = core.NopActivityLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:    store,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes attempt under failover control. attempt is called with
// the currently selected credential; when it fails with a key error the
// credential is unselected (and quarantined on rate limits), the next
// candidate in creation order is selected, and attempt runs again. Each
// credential is tried at most once per Run. Non-key errors propagate
// immediately without rotation.
func (c *Controller) Run(ctx context.Context, owner, provider string, attempt func(cred *core.Credential) error) error {
	cred, err := c.current(ctx, owner, provider)
	if err != nil {
		return err
	}

	visited := map[string]bool{}
	var lastErr error
	for {
		if visited[cred.ID] {
			return c.exhausted(owner, provider, lastErr)
		}
		visited[cred.ID] = true

		err := attempt(cred)
		if err == nil {
			return nil
		}

		var ge *core.GatewayError
		if !errors.As(err, &ge) || !ge.KeyError() {
			c.activity.Log(owner, provider, cred.ID, core.ActionError, err.Error())
			return err
		}
		lastErr = err

		c.logger.Warn("credential failed, rotating",
			"provider", provider,
			"credential", cred.DisplayName(),
			"kind", string(ge.Kind),
			"error", ge.Message,
		)
		c.activity.Log(owner, provider, cred.ID, core.ActionUnselect,
			fmt.Sprintf("rotated out after %s: %s", ge.Kind, ge.Message))
		c.metrics.RecordRotation(provider, string(ge.Kind))

		if ge.Kind == core.KindProviderRateLimited {
			until := c.now().Add(QuarantineDuration)
			if qerr := c.store.Quarantine(ctx, cred.ID, until); qerr != nil {
				c.logger.Error("quarantine failed", "credential", cred.ID, "error", qerr)
			}
		}
		if uerr := c.store.Unselect(ctx, cred.ID); uerr != nil {
			c.logger.Error("unselect failed", "credential", cred.ID, "error", uerr)
		}

		next, err := c.rotate(ctx, owner, provider, cred)
		if err != nil {
			return err
		}
		if next == nil {
			return c.exhausted(owner, provider, lastErr)
		}
		cred = next
	}
}

// current returns the selected credential, electing the oldest eligible
// candidate when none is selected yet.
func (c *Controller) current(ctx context.Context, owner, provider string) (*core.Credential, error) {
	cred, err := c.store.GetSelected(ctx, owner, provider)
	if err != nil {
		return nil, core.NewInternalError("load selected credential", err)
	}
	if cred != nil {
		return cred, nil
	}

	candidates, err := c.store.ListCandidates(ctx, owner, provider)
	if err != nil {
		return nil, core.NewInternalError("list credential candidates", err)
	}
	if len(candidates) == 0 {
		return nil, &core.GatewayError{
			Kind:     core.KindNoCredential,
			Message:  fmt.Sprintf("no credential configured for provider %s", provider),
			Provider: provider,
		}
	}
	cred = candidates[0]
	if err := c.store.Select(ctx, cred.ID); err != nil {
		return nil, core.NewInternalError("select credential", err)
	}
	c.activity.Log(owner, provider, cred.ID, core.ActionSelect, "selected "+cred.DisplayName())
	return cred, nil
}

// rotate selects the candidate created right after the failed one,
// wrapping to the oldest. Returns nil when no candidate remains.
func (c *Controller) rotate(ctx context.Context, owner, provider string, failed *core.Credential) (*core.Credential, error) {
	candidates, err := c.store.ListCandidates(ctx, owner, provider)
	if err != nil {
		return nil, core.NewInternalError("list credential candidates", err)
	}
	var next *core.Credential
	for _, cand := range candidates {
		if cand.ID == failed.ID {
			continue
		}
		if cand.CreatedAt.After(failed.CreatedAt) {
			next = cand
			break
		}
	}
	if next == nil {
		for _, cand := range candidates {
			if cand.ID != failed.ID {
				next = cand
				break
			}
		}
	}
	if next == nil {
		return nil, nil
	}
	if err := c.store.Select(ctx, next.ID); err != nil {
		return nil, core.NewInternalError("select credential", err)
	}
	c.activity.Log(owner, provider, next.ID, core.ActionSelect, "selected "+next.DisplayName())
	return next, nil
}

func (c *Controller) exhausted(owner, provider string, lastErr error) error {
	c.activity.Log(owner, provider, "", core.ActionExhausted, "all credentials failed for "+provider)
	c.metrics.RecordExhaustion(provider)
	c.logger.Error("all credentials exhausted", "provider", provider, "last_error", lastErr)
	return &core.GatewayError{
		Kind:     core.KindCredentialsExhausted,
		Message:  fmt.Sprintf("all credentials for provider %s failed", provider),
		Provider: provider,
		Err:      lastErr,
	}
}
