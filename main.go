package main

import "github.com/littlejohn-app/littlejohn/cmd"

func main() {
	cmd.Execute()
}
