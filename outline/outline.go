// Package outline defines the chapter tree that structures a generated
// document and the character-budget allocation over it.
//
// Titles are unique across the whole tree and serve as lookup keys
// everywhere else in the system. A chapter with sub-chapters never receives
// content directly; only leaves do.
package outline

import (
	"encoding/json"
	"fmt"
)

// Chapter is a node in the outline tree.
type Chapter struct {
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	TargetShare    float64    `json:"target_share,omitempty"`
	AllocatedChars int        `json:"allocated_chars,omitempty"`
	Sections       []*Chapter `json:"sections,omitempty"`
}

// IsLeaf reports whether the chapter has no sub-chapters and therefore
// receives content directly.
func (c *Chapter) IsLeaf() bool {
	return len(c.Sections) == 0
}

// Outline is the document structure: a title and an ordered chapter list.
// The JSON shape matches the checkpointed document_outline_data field.
type Outline struct {
	Title    string     `json:"title"`
	Chapters []*Chapter `json:"outline"`
}

// Validate checks structural invariants: at least one chapter and unique
// titles across the whole tree.
func (o *Outline) Validate() error {
	if len(o.Chapters) == 0 {
		return fmt.Errorf("outline has no chapters")
	}
	seen := make(map[string]bool)
	var walk func(chapters []*Chapter) error
	walk = func(chapters []*Chapter) error {
		for _, ch := range chapters {
			if ch.Title == "" {
				return fmt.Errorf("outline contains a chapter without a title")
			}
			if seen[ch.Title] {
				return fmt.Errorf("duplicate chapter title: %q", ch.Title)
			}
			seen[ch.Title] = true
			if err := walk(ch.Sections); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(o.Chapters)
}

// Chapter returns the top-level chapter with the given title and its index.
func (o *Outline) Chapter(title string) (*Chapter, int, bool) {
	for i, ch := range o.Chapters {
		if ch.Title == title {
			return ch, i, true
		}
	}
	return nil, -1, false
}

// Titles returns the ordered top-level chapter titles.
func (o *Outline) Titles() []string {
	titles := make([]string, len(o.Chapters))
	for i, ch := range o.Chapters {
		titles[i] = ch.Title
	}
	return titles
}

// AllocateChars distributes a total character budget over the tree.
// Chapters weighted by target share; chapters without shares split the
// remainder evenly. Every content-bearing node gets at least minChars.
func (o *Outline) AllocateChars(total, minChars int) {
	allocate(o.Chapters, total, minChars)
}

func allocate(chapters []*Chapter, total, minChars int) {
	if len(chapters) == 0 {
		return
	}

	shared := 0.0
	unshared := 0
	for _, ch := range chapters {
		if ch.TargetShare > 0 {
			shared += ch.TargetShare
		} else {
			unshared++
		}
	}

	// Shares at one level should sum to roughly 1.0; when they don't
	// (partial shares, model drift), the leftover is split evenly among
	// the unshared chapters, or the shares are renormalized.
	leftover := 1.0 - shared
	if leftover < 0 {
		leftover = 0
	}

	for _, ch := range chapters {
		share := ch.TargetShare
		if share <= 0 {
			if unshared > 0 {
				share = leftover / float64(unshared)
			}
		} else if shared > 1.0 {
			share = share / shared
		}

		chars := int(float64(total) * share)
		if chars < minChars {
			chars = minChars
		}
		ch.AllocatedChars = chars
		allocate(ch.Sections, chars, minChars)
	}
}

// JSON renders the outline as indented JSON for inclusion in context
// packets.
func (o *Outline) JSON() string {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Clone returns a deep copy. Context assembly hands outlines to prompt
// builders; callers never share mutable nodes.
func (o *Outline) Clone() *Outline {
	clone := &Outline{Title: o.Title}
	var copyChapters func(chapters []*Chapter) []*Chapter
	copyChapters = func(chapters []*Chapter) []*Chapter {
		if chapters == nil {
			return nil
		}
		out := make([]*Chapter, len(chapters))
		for i, ch := range chapters {
			dup := *ch
			dup.Sections = copyChapters(ch.Sections)
			out[i] = &dup
		}
		return out
	}
	clone.Chapters = copyChapters(o.Chapters)
	return clone
}
