package main

import "github.com/flyghtxmz/Dashboard-V2-sub000/cmd"

func main() {
	cmd.Execute()
}
