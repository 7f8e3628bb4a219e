// Copyright © 2020 Jonathan Whitaker <jonathan@whitaker.io>

package main

func main() {
	Execute()
}
