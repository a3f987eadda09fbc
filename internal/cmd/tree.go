package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tdvu/rzx"
)

type treeNode map[string]treeNode

// printTree renders the entry paths as a directory tree.
func printTree(w io.Writer, entries []rzx.Entry) {
	root := treeNode{}
	files := 0

	for _, e := range entries {
		if !e.IsDir() {
			files++
		}

		node := root
		for _, part := range strings.Split(strings.TrimSuffix(e.Name, "/"), "/") {
			child, ok := node[part]
			if !ok {
				child = treeNode{}
				node[part] = child
			}
			node = child
		}
	}

	printNode(w, root, "")
	_, _ = fmt.Fprintf(w, "\ntotal files: %d\n", files)
}

func printNode(w io.Writer, node treeNode, prefix string) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(keys)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		_, _ = fmt.Fprintln(w, prefix+connector+k)
		printNode(w, node[k], childPrefix)
	}
}
