package main

import "github.com/formbase/formbase/cmd"

func main() {
	cmd.Execute()
}
