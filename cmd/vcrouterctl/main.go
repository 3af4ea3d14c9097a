// Command vcrouterctl is a small inspection CLI for vcrouter network
// configurations: validating a config file (validate) and dry-running a
// single routing decision without standing up a live router (route).
package main

import "github.com/sarchlab/vcrouter/cmd/vcrouterctl/cmd"

func main() {
	cmd.Execute()
}
