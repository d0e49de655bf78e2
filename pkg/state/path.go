package state

import "strings"

// LocalPrefix is the reserved namespace for local-state scopes. Paths under
// it index separately from same-named global paths; documents cannot declare
// paths starting with "@".
const LocalPrefix = "@local:"

// LocalPath returns the namespaced store path for key within the local-state
// scope scopeID.
func LocalPath(scopeID, key string) string {
	return LocalPrefix + scopeID + "." + key
}

// IsLocal reports whether path lives in a local-state namespace.
func IsLocal(path string) bool {
	return strings.HasPrefix(path, LocalPrefix)
}

// SplitPath splits a dot/bracket path into its segments:
// "user.name" -> ["user", "name"], "items[2].id" -> ["items", "2", "id"].
func SplitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '.', '[', ']':
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segs = append(segs, path[start:])
	}
	return segs
}

// Ancestors returns every strict ancestor of path, shortest first:
// "a.b[2].c" -> ["a", "a.b", "a.b[2]"].
func Ancestors(path string) []string {
	var out []string
	for i := 1; i < len(path); i++ {
		switch path[i] {
		case '.', '[':
			out = append(out, path[:i])
		}
	}
	return out
}

// IsStrictAncestor reports whether anc is a strict ancestor of path:
// "user" is a strict ancestor of "user.name" and "user[0]" but not of
// "username" or of "user" itself.
func IsStrictAncestor(anc, path string) bool {
	if len(path) <= len(anc) || !strings.HasPrefix(path, anc) {
		return false
	}
	next := path[len(anc)]
	return next == '.' || next == '['
}

// slashPath converts a dot/bracket path into a slash-separated form
// ("items[2].id" -> "items/2/id") for glob matching.
func slashPath(path string) string {
	return strings.Join(SplitPath(path), "/")
}
