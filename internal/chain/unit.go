package chain

import (
	"github.com/blockspacer/spmdfy/internal/cuast"
)

// Item is one file-scope element of a unit: either a standalone
// declaration node (global variable or structure) or a function chain.
type Item struct {
	Decl  *Node
	Chain *Chain
}

// Unit is a translation unit after linearization, items in source order.
type Unit struct {
	Source *cuast.Unit
	Items  []Item
}

// AddDecl appends a standalone declaration node.
func (u *Unit) AddDecl(n Node) {
	u.Items = append(u.Items, Item{Decl: &n})
}

// AddChain appends a function chain.
func (u *Unit) AddChain(c *Chain) {
	u.Items = append(u.Items, Item{Chain: c})
}

// Chains returns every chain in source order.
func (u *Unit) Chains() []*Chain {
	var out []*Chain
	for _, it := range u.Items {
		if it.Chain != nil {
			out = append(out, it.Chain)
		}
	}
	return out
}

// Kernels returns the chains headed by a KernelEntry.
func (u *Unit) Kernels() []*Chain {
	var out []*Chain
	for _, it := range u.Items {
		if it.Chain != nil && it.Chain.IsKernel() {
			out = append(out, it.Chain)
		}
	}
	return out
}

// DeviceFunctions returns the names of functions linearized under a
// DeviceFunctionEntry.
func (u *Unit) DeviceFunctions() map[string]bool {
	out := make(map[string]bool)
	for _, it := range u.Items {
		if it.Chain != nil && !it.Chain.IsKernel() && it.Chain.Name != "" {
			out[it.Chain.Name] = true
		}
	}
	return out
}
