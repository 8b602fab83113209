package main

import "passkey-core/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
