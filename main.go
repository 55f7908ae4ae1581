package main

import (
	// Report timestamps need a zone database even on hosts without one.
	_ "time/tzdata"

	"github.com/netaudit/shapeaudit/cmd"
)

func main() {
	cmd.Execute()
}
