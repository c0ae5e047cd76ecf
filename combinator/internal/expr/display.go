package expr

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/combinator/combinator/internal/node"
)

// Display renders a tree in a compact human-readable form.
func Display(src node.Source) string {
	var b strings.Builder
	write(&b, src)
	return b.String()
}

func write(b *strings.Builder, src node.Source) {
	switch n := src.(type) {
	case *node.Constant:
		b.WriteString(strconv.FormatFloat(n.Value(), 'g', -1, 64))
	case *node.Metric:
		b.WriteString(n.Name())
	case *node.Hold:
		b.WriteString("hold(")
		b.WriteString(n.Name())
		b.WriteByte(')')
	case *node.Binary:
		switch n.Op() {
		case node.OpMin, node.OpMax:
			b.WriteString(n.Op().String())
			b.WriteByte('[')
			write(b, n.Left())
			b.WriteString(", ")
			write(b, n.Right())
			b.WriteByte(']')
		default:
			b.WriteByte('(')
			write(b, n.Left())
			b.WriteByte(' ')
			b.WriteString(n.Op().String())
			b.WriteByte(' ')
			write(b, n.Right())
			b.WriteByte(')')
		}
	case *node.Variadic:
		b.WriteString(n.Aggregate().String())
		b.WriteByte('[')
		for i, c := range n.Children() {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, c)
		}
		b.WriteByte(']')
	case *node.Throttle:
		b.WriteString("throttle(")
		write(b, n.Child())
		b.WriteString(", ")
		b.WriteString(n.Cooldown().String())
		b.WriteByte(')')
	}
}
