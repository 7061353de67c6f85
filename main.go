package main

import "github.com/playshelf/playshelf-api/cmd"

func main() {
	cmd.Execute()
}
