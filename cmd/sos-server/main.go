package main

import "github.com/oshokin/sos-engine/cmd/sos-server/cmd"

func main() {
	cmd.Execute()
}
