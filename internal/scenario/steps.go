package scenario

import (
	"fmt"
	"net/http"

	"github.com/permlug/digestload/internal/config"
	"github.com/permlug/digestload/internal/httpclient"
	"github.com/permlug/digestload/internal/metrics"
)

const (
	TagRandomRecord metrics.Tag = "randomRecord"
	TagRecordsCount metrics.Tag = "recordsCount"
)

// Tags lists the digest scenario tags in step order.
func Tags() []metrics.Tag {
	return []metrics.Tag{TagRandomRecord, TagRecordsCount}
}

// Step is one tagged request of an iteration.
type Step struct {
	Tag     metrics.Tag
	Builder *httpclient.RequestBuilder
}

// DigestSteps builds the randomRecord and recordsCount GET steps from cfg,
// authenticated through provider.
func DigestSteps(cfg *config.Config, provider httpclient.AuthProvider, propagate bool) ([]Step, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	targets := []struct {
		tag metrics.Tag
		url string
	}{
		{TagRandomRecord, cfg.RandomRecordURL()},
		{TagRecordsCount, cfg.RecordsCountURL()},
	}

	steps := make([]Step, 0, len(targets))
	for _, t := range targets {
		builder, err := httpclient.NewRequestBuilder(http.MethodGet, t.url, map[string]string{
			"Accept": "application/json",
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.tag, err)
		}
		builder.WithAuth(provider).WithTracePropagation(propagate)
		steps = append(steps, Step{Tag: t.tag, Builder: builder})
	}
	return steps, nil
}
