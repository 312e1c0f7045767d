/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/SunSc05/siyuantao-backend-sub001/cmd"

func main() {
	cmd.Execute()
}
