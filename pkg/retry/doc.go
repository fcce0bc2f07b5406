// Package retry retries transient failures with exponential backoff.
//
// It is used for the model artifact download and for inference calls;
// page probes are never retried, a failed probe is simply a miss.
//
//	cfg := retry.FromSettings(appCfg.Retry, log)
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//		return download(ctx)
//	})
//
// Typed errors from pkg/errors are retried according to errors.IsRetryable;
// context cancellation is never retried.
package retry
