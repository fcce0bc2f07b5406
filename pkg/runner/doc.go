// Package runner turns a configuration into a ready probe session.
//
// It is the one place where the pieces meet: the share page client and its
// rate limiter, the image fetcher and storage manager, the model bootstrap
// and vision analyzer, and the observers that persist progress (checkpoint,
// metadata sidecars and the Markdown report).
//
// Usage:
//
//	r := runner.New(cfg, runner.WithLogger(log))
//	session, err := r.Prepare(ctx, resume, forceRestart)
//	if err != nil {
//	    return err
//	}
//	session.AddObserver(display)
//	stats, err := session.Run(ctx)
package runner
