// sshcorectl -- CLI client for the sshcored daemon's control-plane API.
package main

import "github.com/sshcore/transport/cmd/sshcorectl/commands"

func main() {
	commands.Execute()
}
