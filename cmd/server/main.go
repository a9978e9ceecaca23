package main

import "github.com/eventsphere/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
