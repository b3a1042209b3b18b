package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// diskTableKey is the top-level table holding per-disk sections.
const diskTableKey = "disk"

// knownGlobalKeys are the valid flat top-level keys in the config file.
var knownGlobalKeys = map[string]bool{
	"redirect_uri": true,
	// Logging settings
	"log_level": true, "log_format": true,
	// Network settings
	"connect_timeout": true, "data_timeout": true, "user_agent": true, "requests_per_second": true,
	// Cache settings
	"list_ttl": true, "cache_path": true, "data_dir": true, "chunk_size": true,
	diskTableKey: true,
}

// knownDiskKeys are the valid keys inside a [disk.<tag>] section.
var knownDiskKeys = map[string]bool{
	"client_id": true, "client_secret": true, "refresh_token": true,
	"root_path": true, "active_limit": true,
}

var (
	knownGlobalKeysList = sortedKeys(knownGlobalKeys)
	knownDiskKeysList   = sortedKeys(knownDiskKeys)
)

// sortedKeys is the sorted slice form of a key set, for deterministic
// suggestions when two candidates have the same edit distance.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if len(key) >= 3 && key[0] == diskTableKey {
			errs = append(errs, unknownDiskKeyError(key[2], key[1]))

			continue
		}

		errs = append(errs, unknownGlobalKeyError(key[0]))
	}

	return errors.Join(errs...)
}

func unknownGlobalKeyError(name string) error {
	if suggestion := closestMatch(name, knownGlobalKeysList); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

func unknownDiskKeyError(name, tag string) error {
	if suggestion := closestMatch(name, knownDiskKeysList); suggestion != "" {
		return fmt.Errorf("unknown key %q in [disk.%s], did you mean %q?", name, tag, suggestion)
	}

	return fmt.Errorf("unknown key %q in [disk.%s]", name, tag)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: only the previous row is needed.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
