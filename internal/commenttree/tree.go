// Package commenttree rebuilds the displayed comment tree of a post from its
// flat comment rows.
//
// Build is total: every input comment appears exactly once in the output,
// whatever the state of the parent references. Replies are flattened to a
// single displayed level under the nearest root of their ancestor chain.
package commenttree

import (
	"sort"
	"time"

	"community/internal/tombstone"
)

// Input is one stored comment as the reconstructor sees it.
type Input struct {
	ID             uint
	ParentID       *uint
	Deleted        bool
	AuthorID       *uint
	AuthorNickname string
	AuthorImageURL string
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Node is a displayed comment. Placeholder nodes stand in for parents that
// were not found among the inputs.
type Node struct {
	ID             uint      `json:"id"`
	ParentID       *uint     `json:"parent_id,omitempty"`
	AuthorID       *uint     `json:"author_id,omitempty"`
	AuthorNickname string    `json:"author_nickname"`
	AuthorImageURL string    `json:"author_image_url,omitempty"`
	Content        string    `json:"content"`
	Deleted        bool      `json:"deleted"`
	Placeholder    bool      `json:"placeholder"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Replies        []*Node   `json:"replies"`
}

// Count returns the number of non-placeholder nodes in roots and their replies.
func Count(roots []*Node) int {
	n := 0
	for _, r := range roots {
		if !r.Placeholder {
			n++
		}
		n += len(r.Replies)
	}
	return n
}

// root identifies where a comment hangs: a real comment id, or a placeholder
// keyed by the missing parent id.
type root struct {
	id          uint
	placeholder bool
}

// Build reconstructs the tree. Roots and replies are ordered by (CreatedAt,
// ID); placeholder roots take the position of their earliest orphan. Inputs
// with a duplicate ID after the first are ignored.
func Build(comments []Input) []*Node {
	ordered := make([]Input, 0, len(comments))
	byID := make(map[uint]Input, len(comments))
	for _, c := range comments {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = c
		ordered = append(ordered, c)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})
	rank := make(map[uint]int, len(ordered))
	for i, c := range ordered {
		rank[c.ID] = i
	}

	resolved := make(map[uint]root, len(ordered))
	resolve := func(id uint) root {
		if r, ok := resolved[id]; ok {
			return r
		}
		var (
			path   []uint
			onPath = map[uint]int{}
			result root
		)
		cur := id
		for {
			if r, ok := resolved[cur]; ok {
				result = r
				break
			}
			if at, seen := onPath[cur]; seen {
				// Cycle: the earliest comment in the loop becomes the root.
				best := path[at]
				for _, cid := range path[at:] {
					if rank[cid] < rank[best] {
						best = cid
					}
				}
				result = root{id: best}
				break
			}
			c := byID[cur]
			onPath[cur] = len(path)
			path = append(path, cur)
			if c.ParentID == nil || *c.ParentID == cur {
				result = root{id: cur}
				break
			}
			if _, ok := byID[*c.ParentID]; !ok {
				result = root{id: *c.ParentID, placeholder: true}
				break
			}
			cur = *c.ParentID
		}
		for _, cid := range path {
			resolved[cid] = result
		}
		return result
	}

	roots := make([]*Node, 0)
	realRoots := map[uint]*Node{}
	placeholders := map[uint]*Node{}
	// Real roots are created up front so replies sorted before a cyclic
	// root still find it.
	for _, c := range ordered {
		if r := resolve(c.ID); !r.placeholder && r.id == c.ID {
			realRoots[c.ID] = newNode(c)
		}
	}
	for _, c := range ordered {
		r := resolve(c.ID)
		switch {
		case !r.placeholder && r.id == c.ID:
			roots = append(roots, realRoots[c.ID])
		case r.placeholder:
			p, ok := placeholders[r.id]
			if !ok {
				p = placeholder(r.id, c.CreatedAt)
				placeholders[r.id] = p
				roots = append(roots, p)
			}
			p.Replies = append(p.Replies, newNode(c))
		default:
			parent := realRoots[r.id]
			parent.Replies = append(parent.Replies, newNode(c))
		}
	}
	return roots
}

func newNode(c Input) *Node {
	n := &Node{
		ID:             c.ID,
		ParentID:       c.ParentID,
		AuthorID:       c.AuthorID,
		AuthorNickname: c.AuthorNickname,
		AuthorImageURL: c.AuthorImageURL,
		Content:        c.Content,
		Deleted:        c.Deleted,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Replies:        []*Node{},
	}
	if n.AuthorNickname == "" {
		n.AuthorNickname = tombstone.Unknown
	}
	if c.Deleted {
		n.Content = tombstone.RedactedBody
		n.AuthorID = nil
		n.AuthorNickname = tombstone.Unknown
		n.AuthorImageURL = ""
	}
	return n
}

func placeholder(id uint, at time.Time) *Node {
	return &Node{
		ID:             id,
		AuthorNickname: tombstone.Unknown,
		Content:        tombstone.RedactedBody,
		Deleted:        true,
		Placeholder:    true,
		CreatedAt:      at,
		UpdatedAt:      at,
		Replies:        []*Node{},
	}
}
