package main

import "github.com/vdutts/vault/cmd/vault/cmd"

func main() {
	cmd.Execute()
}
