package main

import "github.com/ValentinKolb/kiln/cmd"

func main() {
	cmd.Execute()
}
