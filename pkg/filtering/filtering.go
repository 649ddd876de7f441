// Package filtering restricts hierarchy levels to the nodes lying on a set of identifier
// paths.
package filtering

import (
	"strings"

	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

// Identifier identifies a node on a filtering path: either an instance or a generic node.
type Identifier struct {
	Instance *nodekey.InstanceKey `json:"instance,omitempty"`
	// GenericID and Source identify generic nodes.
	GenericID string `json:"id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// InstanceIdentifier returns an identifier of an instance.
func InstanceIdentifier(className, id string) Identifier {
	return Identifier{Instance: &nodekey.InstanceKey{ClassName: className, ID: id}}
}

// GenericIdentifier returns an identifier of a generic node.
func GenericIdentifier(id string) Identifier {
	return Identifier{GenericID: id}
}

// Matches reports whether the node with key k is identified by id. A node representing
// several merged instances matches when any of its instances does.
func (id Identifier) Matches(k nodekey.Key) bool {
	switch key := k.(type) {
	case nodekey.InstancesKey:
		if id.Instance == nil {
			return false
		}
		for _, ik := range key.InstanceKeys {
			if sameInstance(*id.Instance, ik) {
				return true
			}
		}
		return false
	case nodekey.GenericKey:
		return id.Instance == nil && id.GenericID == key.ID && id.Source == key.Source
	default:
		return false
	}
}

func sameInstance(id, ik nodekey.InstanceKey) bool {
	if id.ID != ik.ID || id.IModelKey != ik.IModelKey {
		return false
	}
	return id.ClassName == "" || strings.EqualFold(normalizeClassName(id.ClassName), normalizeClassName(ik.ClassName))
}

func normalizeClassName(name string) string {
	return strings.Replace(name, ":", ".", 1)
}

// PathOptions configures how the target of a path is revealed.
type PathOptions struct {
	// AutoExpand expands every node leading to the target.
	AutoExpand bool `json:"autoExpand,omitempty"`
}

// Path is a sequence of identifiers from a root node down to a filter target.
type Path struct {
	Identifiers []Identifier `json:"path"`
	Options     PathOptions  `json:"options,omitempty"`
}

// Props describes the filtering state of one node.
type Props struct {
	// FilteredChildrenPaths are the remainders of the paths running through the node.
	FilteredChildrenPaths []Path `json:"filteredChildrenIdentifierPaths,omitempty"`
	// IsFilterTarget is set when a path ends at the node. The subtree of a target is not
	// filtered.
	IsFilterTarget      bool        `json:"isFilterTarget,omitempty"`
	FilterTargetOptions PathOptions `json:"filterTargetOptions,omitempty"`
}

// Root returns the props of the virtual root node for the given paths, or nil when no
// filtering applies.
func Root(paths []Path) *Props {
	if len(paths) == 0 {
		return nil
	}
	return &Props{FilteredChildrenPaths: paths}
}

// filtersChildren reports whether children of a node with these props are restricted.
func (p *Props) filtersChildren() bool {
	return p != nil && !p.IsFilterTarget && len(p.FilteredChildrenPaths) > 0
}

// Match determines whether a child with key k is kept under a parent with props p, and
// the props the child gets. Children of unfiltered parents are always kept with nil props.
func (p *Props) Match(k nodekey.Key) (*Props, bool) {
	if p == nil || len(p.FilteredChildrenPaths) == 0 {
		return nil, true
	}

	var child *Props
	for _, path := range p.FilteredChildrenPaths {
		if len(path.Identifiers) == 0 || !path.Identifiers[0].Matches(k) {
			continue
		}
		if child == nil {
			child = &Props{}
		}
		if len(path.Identifiers) == 1 {
			child.IsFilterTarget = true
			child.FilterTargetOptions.AutoExpand = child.FilterTargetOptions.AutoExpand || path.Options.AutoExpand
			continue
		}
		child.FilteredChildrenPaths = append(child.FilteredChildrenPaths, Path{
			Identifiers: path.Identifiers[1:],
			Options:     path.Options,
		})
	}
	if child != nil {
		return child, true
	}
	return nil, !p.filtersChildren()
}

// AutoExpand reports whether the node should be expanded to reveal a target below it.
func (p *Props) AutoExpand() bool {
	if p == nil {
		return false
	}
	for _, path := range p.FilteredChildrenPaths {
		if path.Options.AutoExpand {
			return true
		}
	}
	return false
}

// RevealsTarget reports whether a grouping node containing this node should be expanded.
func (p *Props) RevealsTarget() bool {
	return p.AutoExpand() || (p != nil && p.IsFilterTarget && p.FilterTargetOptions.AutoExpand)
}

// IsPinned reports whether the node lies on a filtering path. Pinned nodes are context
// for a target and are not subject to hierarchy level size limits.
func (p *Props) IsPinned() bool {
	return p != nil && (p.IsFilterTarget || len(p.FilteredChildrenPaths) > 0)
}

// Merge combines the props of two merged nodes.
func Merge(a, b *Props) *Props {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &Props{
		FilteredChildrenPaths: append(append([]Path(nil), a.FilteredChildrenPaths...), b.FilteredChildrenPaths...),
		IsFilterTarget:        a.IsFilterTarget || b.IsFilterTarget,
		FilterTargetOptions:   PathOptions{AutoExpand: a.FilterTargetOptions.AutoExpand || b.FilterTargetOptions.AutoExpand},
	}
}
