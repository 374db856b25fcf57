package data

import (
	_ "embed"
)

// Defaults holds the runtime configuration defaults, the lowest configuration layer.
//
//go:embed defaults.yaml
var Defaults []byte
