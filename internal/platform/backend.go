package platform

import "errors"

// ErrUnsupported is returned where no window system backend exists.
var ErrUnsupported = errors.New("no window system backend on this platform")

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Display describes a physical display.
type Display struct {
	ID     int
	Name   string
	Bounds Rect
}

// Backend abstracts the window-system reads a window instance needs.
type Backend interface {
	Displays() ([]Display, error)
	ActiveWindow() (WindowID, error)
	WindowBounds(windowID WindowID) (Rect, error)
	FindWindow(title string) (WindowID, error)
	Close()
}
