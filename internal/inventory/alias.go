package inventory

import "strings"

// builtinAliases rewrites OS ids that the Vulners audit API does not accept.
var builtinAliases = map[string]string{
	"ol":   "oraclelinux",
	"rhel": "redhat",
	"amzn": "amazon",
}

// Aliases merges extra over the built-in alias table. Keys and values are
// lowercased and trimmed; an empty value drops a built-in entry.
func Aliases(extra map[string]string) map[string]string {
	out := make(map[string]string, len(builtinAliases)+len(extra))
	for k, v := range builtinAliases {
		out[k] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// NormalizeOS lowercases an OS id and applies the alias table. Only whole
// ids are rewritten: "solaris" stays as is.
func NormalizeOS(os string, aliases map[string]string) string {
	os = strings.ToLower(strings.TrimSpace(os))
	if alias, ok := aliases[os]; ok {
		return alias
	}
	return os
}
