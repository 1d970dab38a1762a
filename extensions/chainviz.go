package extensions

import (
	"fmt"

	"github.com/m1gwings/treedrawer/tree"

	cascade "github.com/cascade-fn/cascade-go"
)

// DrawChain renders the chain containing af as an ASCII tree, one node per
// step labelled with its name and current state. The walk starts at the
// chain's true head (following upchain links) and descends through the
// downchain snapshots, so concurrent attachments may or may not appear.
func DrawChain(af cascade.AltFuture) string {
	root := af
	for {
		up := root.Upchain()
		if up == nil {
			break
		}
		root = up
	}

	t := tree.NewTree(tree.NodeString(stepLabel(root)))
	addChildren(t, root)
	return t.String()
}

func addChildren(t *tree.Tree, af cascade.AltFuture) {
	for i, child := range af.Downchain() {
		t.AddChild(tree.NodeString(stepLabel(child)))
		ct, err := t.Child(i)
		if err != nil {
			continue
		}
		addChildren(ct, child)
	}
}

func stepLabel(af cascade.AltFuture) string {
	return fmt.Sprintf("%s [%s]", af.Name(), af.State())
}
