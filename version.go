package doctxn

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionFile string

// Version is the current version of the doctxn library and tools.
var Version = strings.TrimSpace(versionFile)
