package main

import "github.com/kartoza/decision-forecast/cmd"

// version is set at build time
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
