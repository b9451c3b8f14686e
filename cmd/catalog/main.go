package main

import "github.com/nguyentranbao-ct/catalog-console/cmd"

func main() {
	cmd.Execute()
}
