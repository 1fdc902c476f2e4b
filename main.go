package main

import "github.com/VivianFuVivianFu/Luma-sub002/internal/app"

func main() {
	app.Main()
}
