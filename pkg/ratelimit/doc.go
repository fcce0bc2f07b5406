// Package ratelimit paces requests to the screenshot host.
//
// Every page probe and image download waits on the shared Limiter before it
// is sent. A TokenBucket refills one token per interval up to its burst
// capacity; Wait returns early with ctx.Err() when the run is cancelled.
package ratelimit
