package main

import "github.com/repodock/repodock/cmd/repodock-ctl/cmd"

func main() {
	cmd.Execute()
}
