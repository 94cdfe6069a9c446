// Command drishti runs the face attendance kiosk and its maintenance tools.
package main

func main() {
	Execute()
}
