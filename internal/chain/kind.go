package chain

// Kind tags a chain node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindGlobalVariable
	KindStructureDeclaration
	KindKernelEntry
	KindDeviceFunctionEntry
	KindBranch
	KindLoop
	KindElse
	KindReconverge
	KindInternal
	KindScopeExit
	KindGridScopeOpen
	KindGridScopeClose
	KindBlockScopeOpen
	KindBlockScopeClose
)

func (k Kind) String() string {
	switch k {
	case KindGlobalVariable:
		return "GlobalVariable"
	case KindStructureDeclaration:
		return "StructureDeclaration"
	case KindKernelEntry:
		return "KernelEntry"
	case KindDeviceFunctionEntry:
		return "DeviceFunctionEntry"
	case KindBranch:
		return "Branch"
	case KindLoop:
		return "Loop"
	case KindElse:
		return "Else"
	case KindReconverge:
		return "Reconverge"
	case KindInternal:
		return "Internal"
	case KindScopeExit:
		return "ScopeExit"
	case KindGridScopeOpen:
		return "GridScopeOpen"
	case KindGridScopeClose:
		return "GridScopeClose"
	case KindBlockScopeOpen:
		return "BlockScopeOpen"
	case KindBlockScopeClose:
		return "BlockScopeClose"
	default:
		return "Invalid"
	}
}

// HasSuccessor reports whether nodes of this kind carry a successor edge.
func (k Kind) HasSuccessor() bool {
	switch k {
	case KindInvalid, KindGlobalVariable, KindStructureDeclaration, KindScopeExit:
		return false
	}
	return true
}

// HasPredecessor reports whether nodes of this kind carry a predecessor edge.
func (k Kind) HasPredecessor() bool {
	switch k {
	case KindInvalid, KindGlobalVariable, KindStructureDeclaration, KindKernelEntry, KindDeviceFunctionEntry:
		return false
	}
	return true
}

// IsEntry reports whether k heads a chain.
func (k Kind) IsEntry() bool {
	return k == KindKernelEntry || k == KindDeviceFunctionEntry
}

// IsRegionHead reports whether k opens a region closed by a Reconverge node.
func (k Kind) IsRegionHead() bool {
	return k == KindBranch || k == KindLoop
}

// IsScopeMarker reports whether k is one of the grid/block loop-nest markers.
func (k Kind) IsScopeMarker() bool {
	switch k {
	case KindGridScopeOpen, KindGridScopeClose, KindBlockScopeOpen, KindBlockScopeClose:
		return true
	}
	return false
}
