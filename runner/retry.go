package runner

import (
	"regexp"
	"strconv"
	"time"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/tags"
)

// RetryOptions is a scenario's retry budget, resolved once before its first
// dispatch.
type RetryOptions struct {
	// Retries is the attempt counter the first dispatch starts from.
	Retries event.Retries

	// Delay is the minimum wait between a failed attempt and its retry.
	Delay time.Duration

	// TagFilter, when non-nil, restricts retries to scenarios whose tags
	// satisfy it. It gates runner-level defaults only; an explicit retry tag
	// on the scenario bypasses it.
	TagFilter *tags.Expression
}

// retryTag matches the retry tag forms: @retry, @retry(3), @retry.after(5s)
// and @retry(3).after(5s).
var retryTag = regexp.MustCompile(`^@retry(?:\((\d+)\))?(?:\.after\(([^)]+)\))?$`)

// retryPolicy derives per-scenario RetryOptions from the runner's defaults
// and the scenario's effective tags.
type retryPolicy struct {
	count  int              // default retry count, 0 disables default retries
	delay  time.Duration    // default wait between attempts
	filter *tags.Expression // gates the defaults, not explicit tags
}

// optionsFor resolves the retry options for one scenario. An explicit retry
// tag wins over the configured defaults and applies even when the tag filter
// would reject the scenario; without one, the defaults apply only if the
// filter accepts the scenario's tags. ok is false when the scenario has no
// retry budget at all.
func (p retryPolicy) optionsFor(sc *cuke.Scenario) (RetryOptions, bool) {
	for _, tag := range sc.Tags {
		m := retryTag.FindStringSubmatch(tag.Name)
		if m == nil {
			continue
		}

		count := p.count
		if m[1] != "" {
			count, _ = strconv.Atoi(m[1])
		} else if count == 0 {
			count = 1
		}

		delay := p.delay
		if m[2] != "" {
			if d, err := time.ParseDuration(m[2]); err == nil {
				delay = d
			}
		}

		return RetryOptions{Retries: event.InitialRetries(count), Delay: delay}, true
	}

	if p.count == 0 {
		return RetryOptions{}, false
	}
	if p.filter != nil && !p.filter.Match(cuke.TagNames(sc.Tags)) {
		return RetryOptions{}, false
	}

	return RetryOptions{
		Retries:   event.InitialRetries(p.count),
		Delay:     p.delay,
		TagFilter: p.filter,
	}, true
}

// shouldRetry decides whether a failed attempt may be dispatched again. Only
// step and background failures are retryable: hook failures and ambiguous
// matches end the scenario regardless of its remaining budget, as does a tag
// filter that rejects the scenario. The decision is pure; waiting out the
// returned delay before re-dispatch is the caller's job.
func shouldRetry(v verdict, r event.Retries, opts RetryOptions, sc *cuke.Scenario) (event.Retries, time.Duration, bool) {
	if !v.failed || !v.retryable {
		return event.Retries{}, 0, false
	}
	if opts.TagFilter != nil && !opts.TagFilter.Match(cuke.TagNames(sc.Tags)) {
		return event.Retries{}, 0, false
	}

	next, ok := r.Next()
	if !ok {
		return event.Retries{}, 0, false
	}

	return next, opts.Delay, true
}
