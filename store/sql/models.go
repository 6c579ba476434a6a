package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type callActivityRecord struct {
	bun.BaseModel `bun:"table:call_activity_entries,alias:cae"`

	ID         string         `bun:"id,pk"`
	Component  string         `bun:"component,notnull"`
	Operation  string         `bun:"operation,notnull"`
	Status     string         `bun:"status,notnull"`
	Attempts   int            `bun:"attempts,notnull"`
	HTTPStatus int            `bun:"http_status,notnull"`
	DurationMS int64          `bun:"duration_ms,notnull"`
	Error      string         `bun:"error"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:rate_limit_states,alias:rls"`

	ID             string     `bun:"id,pk"`
	Component      string     `bun:"component,notnull"`
	BucketKey      string     `bun:"bucket_key,notnull"`
	LimitValue     int        `bun:"limit_value,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterS    *int       `bun:"retry_after_s,nullzero"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
