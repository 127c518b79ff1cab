package display

import (
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Keys that close the window view.
const (
	keyEscape = 27
	keyQuit   = 'q'
)

// Window shows images in a native OpenCV window and polls the keyboard.
// It must be used from the goroutine that created it.
type Window struct {
	window *gocv.Window
	quit   atomic.Bool
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Present shows the image and polls for the quit key.
func (w *Window) Present(img gocv.Mat) error {
	w.window.IMShow(img)
	if isQuitKey(w.window.WaitKey(1)) {
		w.quit.Store(true)
	}
	return nil
}

// QuitRequested reports whether q or Esc was pressed.
func (w *Window) QuitRequested() bool {
	return w.quit.Load()
}

// Close closes the window.
func (w *Window) Close() error {
	return w.window.Close()
}

func isQuitKey(key int) bool {
	return key == keyEscape || key == keyQuit
}
