package loom

const (
	loomPkgPath = "github.com/loomwire/loom"
	loomPkgName = "loom"

	wireFuncName      = "Wire"
	entryFuncName     = "Entry"
	transientFuncName = "Transient"

	// defaultSuffix is inserted before the extension of every generated
	// file name.
	defaultSuffix = "_loom"

	generatedHeader = "// Code generated by loom. DO NOT EDIT."
)
