package main

import "cosmos/sieve/cmd"

func main() {
	cmd.Execute()
}
