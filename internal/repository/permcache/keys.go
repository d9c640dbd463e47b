package permcache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// keyspace builds every key the cache touches. Identities are hashed, so only
// the configured namespace and prefix can carry glob metacharacters, and
// those are escaped in patterns.
type keyspace struct {
	base string // "<namespace>:<prefix>perm:"
}

func newKeyspace(namespace, prefix string) keyspace {
	var b strings.Builder
	if namespace != "" {
		b.WriteString(namespace)
		b.WriteByte(':')
	}
	b.WriteString(prefix)
	b.WriteString("perm:")
	return keyspace{base: b.String()}
}

func digest(parts ...string) string {
	d := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = d.WriteString("\x00")
		}
		_, _ = d.WriteString(p)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// entry is the pattern-mode key of one decision.
func (k keyspace) entry(user, view, action string) string {
	return k.base + "u:" + digest(user) + ":" + digest(view, action)
}

// versionedEntry is the generation-mode key of one decision.
func (k keyspace) versionedEntry(global, userGen int64, user, view, action string) string {
	return k.base + "g" + strconv.FormatInt(global, 10) +
		":u:" + digest(user) + ":" + strconv.FormatInt(userGen, 10) +
		":" + digest(view, action)
}

func (k keyspace) globalGeneration() string {
	return k.base + "gen"
}

func (k keyspace) userGeneration(user string) string {
	return k.base + "gen:u:" + digest(user)
}

func (k keyspace) userPattern(user string) string {
	return escapeGlob(k.base) + "u:" + digest(user) + ":*"
}

func (k keyspace) allPattern() string {
	return escapeGlob(k.base) + "*"
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
