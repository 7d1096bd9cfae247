package reporthttp

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var summaryBuildGroup singleflight.Group

// singleflightBuild collapses concurrent builds of the same cache-miss
// key into one execution. Callers whose context dies stop waiting but the
// in-flight build completes for the others.
func singleflightBuild(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	resultChan := summaryBuildGroup.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
