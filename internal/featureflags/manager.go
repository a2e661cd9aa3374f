// Package featureflags evaluates runtime feature toggles parsed from the
// FEATURE_FLAGS config string. Flags are static for the process lifetime;
// changing them means restarting with a new config.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flag names. Callers should use these constants rather than
// string literals so a typo cannot silently disable a feature.
const (
	// RealtimeFeed gates the websocket event feed at /api/ws.
	RealtimeFeed = "realtime_feed"
)

// Manager evaluates feature flags defined as a comma-separated key=value
// list, e.g. "realtime_feed=on,new_editor=25%,legacy_profile=off".
type Manager struct {
	flags map[string]string
}

// NewManager parses the raw flag string. Malformed pairs are dropped
// rather than treated as errors so a bad entry cannot take the API down.
func NewManager(raw string) *Manager {
	flags := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		name := normalize(kv[0])
		value := normalize(kv[1])
		if name == "" || value == "" {
			continue
		}
		flags[name] = value
	}

	return &Manager{flags: flags}
}

// Enabled reports whether a flag is on for the given user. Values:
//   - on/true/1: enabled for everyone
//   - off/false/0: disabled for everyone
//   - N%: deterministic per-user rollout; the same user always lands in
//     the same bucket, anonymous users (userID 0) are excluded
//
// Unknown flags and unparseable values are off.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if pctRaw, found := strings.CutSuffix(value, "%"); found {
		pct, err := strconv.Atoi(pctRaw)
		if err != nil {
			return false
		}
		if pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if userID == 0 {
			return false
		}
		return rolloutBucket(name, userID) < pct
	}

	return false
}

// Raw returns a copy of the configured flag values as parsed.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for name, value := range m.flags {
		out[name] = value
	}
	return out
}

// Snapshot evaluates every configured flag for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

// Names returns the configured flag names in stable order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.flags))
	for name := range m.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rolloutBucket maps (flag, user) onto 0..99. FNV keeps buckets stable
// across restarts without any stored state.
func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
