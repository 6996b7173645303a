package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer persists an object under a slash-separated key.
type Writer interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ObjectLocation describes where a blob should live.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveObjectLocation combines a deployment prefix and a logical key into a bucket/path pair.
//   - bucket comes from deployment configuration; it may be empty for the local backend.
//   - prefix is an optional environment prefix such as "prod/"; a trailing slash is added.
//   - logicalKey is relative, e.g. "reports/2026/03/01/<run_id>.json".
func ResolveObjectLocation(bucket, prefix, logicalKey string) (ObjectLocation, error) {
	key := strings.TrimPrefix(strings.TrimSpace(logicalKey), "/")
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("logical key is required")
	}
	if strings.Contains(key, "..") {
		return ObjectLocation{}, fmt.Errorf("logical key %q must not contain '..'", logicalKey)
	}

	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return ObjectLocation{Bucket: strings.TrimSpace(bucket), FullPath: prefix + key}, nil
}

// ReportKey returns the logical key of a reconciliation run report, partitioned by day.
func ReportKey(runID uuid.UUID, startedAt time.Time) string {
	return fmt.Sprintf("reports/%s/%s.json", startedAt.UTC().Format("2006/01/02"), runID)
}

// Discard drops every object; used when no report backend is configured.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte) error { return nil }

var _ Writer = Discard{}
