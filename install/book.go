package install

import (
	"sort"

	"github.com/mpkg-go/mpkg/ordmap"
)

// dirRecord is one entry of pass_two_dirs / pass_three_dirs: the
// metadata to finalize a directory with (if Claim) and whether rollback
// must remove it (Unroll).
type dirRecord struct {
	Owner, Group int
	Mode         uint32
	Claim        bool
	Unroll       bool
}

// fileState is one entry of pass_three_files: a staged temp file and the
// metadata to apply to it when it is hard-linked into place in Pass 6.
type fileState struct {
	TempPath     string
	Owner, Group int
	Mode         uint32
	MTime        int64
}

// book is the install-state book (spec §3): everything a failed pass
// 1-4 needs undone, held only for the duration of one install.
type book struct {
	descrPath    string
	oldDescrTemp string

	pass2Dirs    *ordmap.Map[string, dirRecord]
	pass3Dirs    *ordmap.Map[string, dirRecord]
	pass3Files   *ordmap.Map[string, fileState]
	pass4New     *ordmap.Map[string, struct{}]
	pass4Renamed *ordmap.Map[string, string]
}

func newBook() *book {
	return &book{
		pass2Dirs:    ordmap.New[string, dirRecord](ordmap.LexicographicString),
		pass3Dirs:    ordmap.New[string, dirRecord](ordmap.LexicographicString),
		pass3Files:   ordmap.New[string, fileState](ordmap.LexicographicString),
		pass4New:     ordmap.New[string, struct{}](ordmap.LexicographicString),
		pass4Renamed: ordmap.New[string, string](ordmap.LexicographicString),
	}
}

// sortedKeys enumerates m and returns its keys ordered by less, so that
// passes and rollback can demand pre-order or post-order traversal
// independent of the map's own storage order.
func sortedKeys[V any](m *ordmap.Map[string, V], less ordmap.Comparator[string]) []string {
	c := m.Enumerate()
	var keys []string
	for {
		k, _, ok := c.Next()
		if !ok {
			break
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) < 0 })
	return keys
}
