package main

import "identity-sync/cmd"

func main() {
	cmd.Execute()
}
