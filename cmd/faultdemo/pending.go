package main

import (
	"strconv"
	"strings"

	"github.com/sharnoff/funnel"
)

// pendingSummary lists the outstanding work in a tracker tree, one "path (count)" entry per line. It
// returns the empty string if there is none.
func pendingSummary(tree funnel.TrackerTree) string {
	var b strings.Builder
	writePending(&b, tree.Name, tree)
	return b.String()
}

func writePending(b *strings.Builder, path string, tree funnel.TrackerTree) {
	for _, p := range tree.Pending {
		b.WriteString(path)
		b.WriteByte('/')
		b.WriteString(p.Name)
		if p.Count != 1 {
			b.WriteString(" (")
			b.WriteString(strconv.FormatUint(uint64(p.Count), 10))
			b.WriteByte(')')
		}
		b.WriteByte('\n')
	}
	for _, c := range tree.Children {
		writePending(b, path+"/"+c.Name, c)
	}
}
