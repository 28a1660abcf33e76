package main

import "github.com/codedread/spaces/cmd/spacesctl/cmd"

func main() {
	cmd.Execute()
}
