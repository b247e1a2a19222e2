// Package cdn manages the lines of a multi-line CDN source: selection, failover and the
// access token that authorises requests against them.
package cdn

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/mpcore/internal/domain/media"
)

// Query parameters understood by QueryResolver.
const (
	ParamLines = "lines"
	ParamToken = "token"
	ParamTS    = "ts"
)

// Source is a resolved CDN source.
type Source struct {
	Lines  []string
	Token  string
	Expiry time.Time // zero when the token does not expire
}

// Resolver turns a CDN source into its ordered lines.
type Resolver interface {
	Resolve(src string) (Source, error)
}

// QueryResolver reads lines from the source URL itself:
//
//	https://edge.example.com/live/stream.flv?lines=a.example.com,b.example.com&token=abc&ts=1700000000
//
// yields one line per host with the host replaced. Without a lines parameter the
// source is a single line.
type QueryResolver struct{}

// Resolve implements Resolver.
func (QueryResolver) Resolve(src string) (Source, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Source{}, errors.Wrapf(media.ErrInvalidArguments, "invalid cdn source: %q", src)
	}

	q := u.Query()
	hosts := lo.Compact(lo.Map(strings.Split(q.Get(ParamLines), ","), func(h string, _ int) string {
		return strings.TrimSpace(h)
	}))
	out := Source{Token: q.Get(ParamToken)}
	if ts := q.Get(ParamTS); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Source{}, errors.Wrapf(media.ErrInvalidArguments, "invalid ts: %q", ts)
		}
		out.Expiry = time.Unix(sec, 0)
	}

	q.Del(ParamLines)
	q.Del(ParamToken)
	q.Del(ParamTS)
	u.RawQuery = q.Encode()

	if len(hosts) == 0 {
		out.Lines = []string{u.String()}
		return out, nil
	}
	out.Lines = lo.Map(hosts, func(h string, _ int) string {
		line := *u
		line.Host = h
		return line.String()
	})
	return out, nil
}

// withToken returns line with the token query parameter set.
func withToken(line, token string) string {
	if token == "" {
		return line
	}
	u, err := url.Parse(line)
	if err != nil {
		return line
	}
	q := u.Query()
	q.Set(ParamToken, token)
	u.RawQuery = q.Encode()
	return u.String()
}
