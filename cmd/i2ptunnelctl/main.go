// i2ptunnelctl is the CLI client for the i2ptunneld admin endpoint.
package main

import "github.com/go-i2p/tunneld/cmd/i2ptunnelctl/commands"

func main() {
	commands.Execute()
}
