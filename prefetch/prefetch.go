// Package prefetch implements spec 4.J: resolving a list of path patterns
// against a loaded bootstrap into an ordered, coalesced sequence of blob
// spans a transport can warm into cache at mount time.
package prefetch

import (
	"path"
	"sort"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/loader"
)

// Policy selects what a resolved plan is used for (spec 4.J).
type Policy int

const (
	// PolicyNone disables prefetch planning entirely; Plan returns no spans.
	PolicyNone Policy = iota
	// PolicyFSLevel resolves spans for an fs-level prefetch table (see
	// EncodeTable); neither the format writers nor the loader write or
	// read such a table themselves.
	PolicyFSLevel
	// PolicyBlobLevel means the caller physically reorders blob content
	// so the plan's spans sit at the front of their blob; the planner
	// only resolves the spans, the reordering itself is the caller's.
	PolicyBlobLevel
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyFSLevel:
		return "fs-level"
	case PolicyBlobLevel:
		return "blob-level"
	default:
		return "unknown"
	}
}

// Span is one contiguous region of compressed blob data to prefetch.
type Span struct {
	BlobIndex        uint32
	CompressedOffset uint64
	CompressedSize   uint32
}

// Planner resolves path patterns against a loaded bootstrap.
type Planner struct {
	Sup    *loader.RafsSuper
	Policy Policy
}

// Plan resolves patterns ("/usr/bin/*", "/lib/libc.so.6", ...) to inodes,
// collects every chunk span reachable from each match (a directory match
// pulls in every regular file beneath it), and returns them sorted and
// coalesced per blob. Pattern syntax is path.Match's (a single path
// component per "*"/"?"/"[...]" segment, matched against each directory
// level as the tree is walked, so "/usr/bin/*" does not also match
// "/usr/bin/sub/file").
func (p *Planner) Plan(patterns []string) ([]Span, error) {
	if p.Policy == PolicyNone || len(patterns) == 0 {
		return nil, nil
	}

	root, err := p.Sup.GetInode(rafs.RootIno, false)
	if err != nil {
		return nil, err
	}

	var spans []Span
	var walk func(n *loader.Inode, p string) error
	walk = func(n *loader.Inode, nodePath string) error {
		matched := false
		for _, pat := range patterns {
			ok, err := path.Match(pat, nodePath)
			if err != nil {
				return rafs.NewError(rafs.KindConfigure, pat, err)
			}
			if ok {
				matched = true
				break
			}
		}

		if matched {
			s, err := collectSpans(n)
			if err != nil {
				return err
			}
			spans = append(spans, s...)
			if n.IsReg() {
				return nil
			}
			// A matched directory still recurses below so every
			// descendant file's chunks are included, even though none of
			// them individually matched a pattern.
			return walkAll(n, &spans)
		}

		if !n.IsDir() {
			return nil
		}
		cnt := n.ChildCount()
		for i := uint32(0); i < cnt; i++ {
			c, err := n.Child(i)
			if err != nil {
				return err
			}
			if err := walk(c, path.Join(nodePath, c.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, "/"); err != nil {
		return nil, err
	}
	return coalesce(spans), nil
}

func walkAll(n *loader.Inode, spans *[]Span) error {
	cnt := n.ChildCount()
	for i := uint32(0); i < cnt; i++ {
		c, err := n.Child(i)
		if err != nil {
			return err
		}
		s, err := collectSpans(c)
		if err != nil {
			return err
		}
		*spans = append(*spans, s...)
		if c.IsDir() {
			if err := walkAll(c, spans); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectSpans(n *loader.Inode) ([]Span, error) {
	if !n.IsReg() {
		return nil, nil
	}
	cnt := n.ChunkCount()
	spans := make([]Span, 0, cnt)
	for i := uint32(0); i < cnt; i++ {
		cd, err := n.ChunkInfo(i)
		if err != nil {
			return nil, err
		}
		spans = append(spans, Span{
			BlobIndex:        cd.BlobIndex,
			CompressedOffset: cd.CompressedOffset,
			CompressedSize:   cd.CompressedSize,
		})
	}
	return spans, nil
}

// coalesce sorts spans by (BlobIndex, CompressedOffset) and merges
// adjacent ones, so a prefetcher issues one read per contiguous run
// instead of one per chunk (spec 4.J, "coalesced when adjacent").
func coalesce(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].BlobIndex != spans[j].BlobIndex {
			return spans[i].BlobIndex < spans[j].BlobIndex
		}
		return spans[i].CompressedOffset < spans[j].CompressedOffset
	})

	out := make([]Span, 0, len(spans))
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.BlobIndex == cur.BlobIndex && s.CompressedOffset == cur.CompressedOffset+uint64(cur.CompressedSize) {
			cur.CompressedSize += s.CompressedSize
			continue
		}
		if s.BlobIndex == cur.BlobIndex && s.CompressedOffset+uint64(s.CompressedSize) <= cur.CompressedOffset+uint64(cur.CompressedSize) {
			continue // span already covered by cur, e.g. a dictionary-deduplicated chunk reached via two matches
		}
		out = append(out, cur)
		cur = s
	}
	return append(out, cur)
}
