package main

import "github.com/encodeous/tollmesh/cmd"

func main() {
	cmd.Execute()
}
