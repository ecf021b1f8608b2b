package main

import "github.com/geovar/spagen"

func main() {
	spagen.Main()
}
