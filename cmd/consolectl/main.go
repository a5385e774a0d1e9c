package main

import "github.com/stemsi/tricol-console/cmd/consolectl/cmd"

func main() {
	cmd.Execute()
}
