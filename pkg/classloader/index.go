package classloader

import (
	"sort"
	"strings"

	"github.com/dghubble/trie"

	"github.com/stackb/classfactory/pkg/compile"
)

// artifactIndex holds compiled class bytes keyed by fully-qualified name in a
// trie segmented on dots, so that the classes of a package share a subtree.
type artifactIndex struct {
	classes *trie.PathTrie
	size    int
}

func newArtifactIndex(artifacts compile.Artifacts) *artifactIndex {
	ix := &artifactIndex{
		classes: trie.NewPathTrieWithConfig(&trie.PathTrieConfig{
			Segmenter: nameSegmenter,
		}),
	}
	for name, data := range artifacts {
		if ix.classes.Put(name, data) {
			ix.size++
		}
	}
	return ix
}

// get returns the bytes for the named class.
func (ix *artifactIndex) get(name string) ([]byte, bool) {
	v := ix.classes.Get(name)
	if v == nil {
		return nil, false
	}
	return v.([]byte), true
}

// names returns all indexed class names in sorted order.
func (ix *artifactIndex) names() []string {
	names := make([]string, 0, ix.size)
	ix.classes.Walk(func(key string, value interface{}) error {
		if value != nil {
			names = append(names, key)
		}
		return nil
	})
	sort.Strings(names)
	return names
}

// packageClasses returns the names of classes declared directly in pkg.
func (ix *artifactIndex) packageClasses(pkg string) []string {
	var names []string
	for _, name := range ix.names() {
		if compile.PackageName(name) == pkg {
			names = append(names, name)
		}
	}
	return names
}

// nameSegmenter segments fully-qualified names by dot separators. For
// example, "a.b.c" -> ("a", 1), (".b", 3), (".c", -1) in successive calls.
func nameSegmenter(path string, start int) (segment string, next int) {
	if len(path) == 0 || start < 0 || start > len(path)-1 {
		return "", -1
	}
	end := strings.IndexRune(path[start+1:], '.') // next '.' after 0th rune
	if end == -1 {
		return path[start:], -1
	}
	return path[start : start+end+1], start + end + 1
}
