// Package listing emulates S3 delimiter listings for backends that only have
// a flat, recursive list.
package listing

import (
	"sort"
	"strings"

	"github.com/hicsail/kidney-web/internal/application/ports"
)

// Group splits objects under prefix into direct objects and common prefixes.
// Objects outside prefix are dropped. Both slices come back sorted and
// non-nil.
func Group(objects []ports.ObjectInfo, prefix, delimiter string) *ports.ListResult {
	result := &ports.ListResult{Objects: []ports.ObjectInfo{}, CommonPrefixes: []string{}}
	seen := map[string]bool{}

	for _, o := range objects {
		if !strings.HasPrefix(o.Key, prefix) {
			continue
		}
		rest := o.Key[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if !seen[cp] {
					seen[cp] = true
					result.CommonPrefixes = append(result.CommonPrefixes, cp)
				}
				continue
			}
		}
		result.Objects = append(result.Objects, o)
	}

	sort.Strings(result.CommonPrefixes)
	SortByKey(result.Objects)
	return result
}

// SortByKey orders objects lexicographically by key, as S3 does.
func SortByKey(objects []ports.ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}
