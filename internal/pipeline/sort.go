package pipeline

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/iTwin/presentation-hierarchies/pkg/node"
)

func pinOrder(n *node.ProcessedNode) int {
	switch n.GroupingOptions.Pin {
	case node.PinTop:
		return 0
	case node.PinBottom:
		return 2
	default:
		return 1
	}
}

// sortNodes sorts nodes by label, case-insensitively and with numbers compared by value,
// for locale. Pinned grouping nodes go first or last. Equal labels keep their order.
func sortNodes(nodes []*node.ProcessedNode, locale language.Tag) {
	// collators are not safe for concurrent use
	c := collate.New(locale, collate.IgnoreCase, collate.Numeric)
	slices.SortStableFunc(nodes, func(a, b *node.ProcessedNode) int {
		if pa, pb := pinOrder(a), pinOrder(b); pa != pb {
			return pa - pb
		}
		return c.CompareString(a.Label, b.Label)
	})
}
