// Package apikey validates prefixed API keys of the form <kind>_<hex-digest>
// against the configured allow-list.
package apikey

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
)

const (
	// KindGeneral is the general-purpose scope. Every other kind is a
	// partner scope named after the kind.
	KindGeneral = "pk"

	MinDigestLength = 32

	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
	ReasonUnknown   = "unknown"

	prefixDigestChars = 8
	maxPrefixLength   = 64
)

// Recorder receives one AuthLog per authentication decision.
type Recorder interface {
	LogAuth(ctx context.Context, entry *models.AuthLog)
}

// Meta describes the request a key was presented on.
type Meta struct {
	CorrelationID string
	Path          string
	IP            string
}

// Result is the outcome of Authenticate.
type Result struct {
	Accepted bool
	Kind     string
	// Partner is set for partner-scoped keys.
	Partner string
	Reason  string
	Prefix  string
}

// IsPartner reports whether the key belongs to a partner scope.
func (r Result) IsPartner() bool {
	return r.Partner != ""
}

type Authenticator struct {
	keys     map[string]struct{}
	recorder Recorder
}

// NewAuthenticator builds the allow-list. Malformed configured keys are
// skipped with a warning.
func NewAuthenticator(keys []string, recorder Recorder) *Authenticator {
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if _, _, ok := Parse(key); !ok {
			log.Warnf("[APIKey] Skipping malformed configured key %s", Prefix(key))
			continue
		}
		allowed[key] = struct{}{}
	}
	if len(allowed) == 0 {
		log.Warn("[APIKey] No valid API keys configured, every authenticated route will reject")
	}
	return &Authenticator{keys: allowed, recorder: recorder}
}

// Authenticate checks a presented key and records exactly one AuthLog row.
func (a *Authenticator) Authenticate(ctx context.Context, presented string, meta Meta) Result {
	res := a.check(strings.TrimSpace(presented))

	if a.recorder != nil {
		entry := &models.AuthLog{
			CorrelationID: meta.CorrelationID,
			KeyPrefix:     res.Prefix,
			KeyKind:       res.Kind,
			Outcome:       models.AuthOutcomeRejected,
			Reason:        res.Reason,
			Path:          meta.Path,
			IP:            meta.IP,
		}
		if res.Accepted {
			entry.Outcome = models.AuthOutcomeAccepted
		}
		a.recorder.LogAuth(ctx, entry)
	}
	return res
}

func (a *Authenticator) check(key string) Result {
	if key == "" {
		return Result{Reason: ReasonMissing}
	}
	res := Result{Prefix: Prefix(key)}

	kind, _, ok := Parse(key)
	if !ok {
		res.Reason = ReasonMalformed
		return res
	}
	res.Kind = kind
	if kind != KindGeneral {
		res.Partner = kind
	}

	if _, ok := a.keys[key]; !ok {
		res.Reason = ReasonUnknown
		return res
	}
	res.Accepted = true
	return res
}

// Parse splits a key into kind and digest and reports whether it has the
// expected shape: a lower-case [a-z][a-z0-9]* kind, an underscore, and a
// lower-case hex digest of even length and at least MinDigestLength chars.
func Parse(key string) (kind, digest string, ok bool) {
	idx := strings.IndexByte(key, '_')
	if idx <= 0 {
		return "", "", false
	}
	kind, digest = key[:idx], key[idx+1:]

	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return "", "", false
		}
	}

	if len(digest) < MinDigestLength || len(digest)%2 != 0 {
		return "", "", false
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", "", false
		}
	}
	return kind, digest, true
}

// Prefix returns the loggable part of a key: the kind plus the first eight
// digest characters. Keys without a separator keep only their first eight
// characters.
func Prefix(key string) string {
	var p string
	if idx := strings.IndexByte(key, '_'); idx >= 0 {
		digest := key[idx+1:]
		if len(digest) > prefixDigestChars {
			digest = digest[:prefixDigestChars]
		}
		p = key[:idx+1] + digest
	} else {
		p = key
		if len(p) > prefixDigestChars {
			p = p[:prefixDigestChars]
		}
	}
	if len(p) > maxPrefixLength {
		p = p[:maxPrefixLength]
	}
	return p
}
