package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Chain construction and restructuring
	ChainInfo                 Code = 1000
	ChainUnsupportedOperation Code = 1001
	ChainBroken               Code = 1002
	ChainUnrecognizedBoundary Code = 1003
	ChainInvalid              Code = 1004

	// AST input
	InputInfo                 Code = 2000
	InputLoadFailed           Code = 2001
	InputUnsupportedConstruct Code = 2002

	// I/O
	IOLoadFileError  Code = 4001
	IOWriteFileError Code = 4002

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:               "Unknown error",
		ChainInfo:                 "Chain information",
		ChainUnsupportedOperation: "Unsupported chain operation",
		ChainBroken:               "Broken chain",
		ChainUnrecognizedBoundary: "Unrecognized fission boundary",
		ChainInvalid:              "Malformed chain",
		InputInfo:                 "Input information",
		InputLoadFailed:           "Failed to load AST",
		InputUnsupportedConstruct: "Unsupported source construct",
		IOLoadFileError:           "I/O load file error",
		IOWriteFileError:          "I/O write file error",
		ObsInfo:                   "Observability information",
		ObsTimings:                "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 3000:
		return fmt.Sprintf("SPM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
