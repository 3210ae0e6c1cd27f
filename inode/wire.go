package inode

import (
	"context"
	"encoding/json"
	"fmt"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/fset"
)

type wireRef struct {
	Address string       `json:"address"`
	First   flake.Flake  `json:"first"`
	RHS     *flake.Flake `json:"rhs,omitempty"`
}

type wireNode struct {
	Kind     Kind         `json:"kind"`
	T        int64        `json:"t"`
	RHS      *flake.Flake `json:"rhs,omitempty"`
	Children []wireRef    `json:"children,omitempty"`
	Flakes   []flake.Flake `json:"flakes,omitempty"`
	History  []flake.Flake `json:"history,omitempty"`
}

func encodeNode(n *Node) ([]byte, error) {
	w := wireNode{Kind: n.Kind, T: int64(n.T), RHS: n.RHS}
	switch n.Kind {
	case KindBranch:
		w.Children = make([]wireRef, len(n.Children))
		for i, c := range n.Children {
			w.Children[i] = wireRef{Address: string(c.Address), First: c.First, RHS: c.RHS}
		}
	case KindLeaf:
		w.Flakes = n.Flakes.ToSlice()
		w.History = n.History
	}
	return json.Marshal(w)
}

func decodeNode(cmp flake.Comparator, data []byte) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("inode: decode: %w", err)
	}
	n := &Node{Kind: w.Kind, T: flake.T(w.T), RHS: w.RHS}
	switch w.Kind {
	case KindBranch:
		if len(w.Children) == 0 {
			return nil, fmt.Errorf("inode: decoded branch has no children")
		}
		n.Children = make([]Ref, len(w.Children))
		for i, c := range w.Children {
			n.Children[i] = Ref{Address: catalog.Address(c.Address), First: c.First, RHS: c.RHS}
		}
		n.First = n.Children[0].First
	case KindLeaf:
		n.Flakes = fset.FromSlice(cmp, w.Flakes)
		n.History = w.History
		if n.Flakes.Size() > 0 {
			n.First = n.Flakes.ToSlice()[0]
		}
	default:
		return nil, fmt.Errorf("inode: unknown node kind %d", w.Kind)
	}
	return n, nil
}

// Write content-addresses and persists n through store, setting n.Address.
// Writing is idempotent: the same node content always yields the same
// address (spec §8 property 8).
func Write(ctx context.Context, store catalog.ContentStore, n *Node) (catalog.Address, error) {
	data, err := encodeNode(n)
	if err != nil {
		return "", err
	}
	addr, _, err := store.ContentWriteBytes(ctx, data)
	if err != nil {
		return "", err
	}
	n.Address = addr
	return addr, nil
}
