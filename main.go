package main

import "arcsync/internal/app"

func main() {
	app.Execute()
}
