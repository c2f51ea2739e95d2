package main

import "github.com/Another0Noob/animecatalog/cmd"

func main() {
	cmd.Execute()
}
