package main

import "github.com/rhythmnet/beatsync/cmd/beatsync/cmd"

func main() {
	cmd.Execute()
}
