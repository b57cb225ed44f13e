/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "sybot/cmd"

func main() {
	cmd.Execute()
}
