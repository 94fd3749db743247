package main

// version is set at build time
var version = "dev"

func main() {
	setVersion(version)
	execute()
}
