package sqlstore

import (
	"github.com/goliatone/go-outbound/core"
	"github.com/goliatone/go-outbound/ratelimit"
)

var (
	_ core.ActivitySink    = (*ActivityStore)(nil)
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
)
