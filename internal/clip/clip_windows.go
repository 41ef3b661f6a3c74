//go:build windows

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
// #include <stdlib.h>
//
// static HWND csync_create_listener_window();
// static void csync_pump_messages(HWND hwnd, int* changed);
//
// static LRESULT CALLBACK csync_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, WM_USER + 1, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND csync_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = csync_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "CsyncClipboard";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "CsyncClipboard", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     AddClipboardFormatListener(hwnd);
//     return hwnd;
// }
//
// static void csync_pump_messages(HWND hwnd, int* changed) {
//     MSG msg;
//     *changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_USER + 1) { *changed = 1; }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
// }
import "C"

import (
	"fmt"
	"time"

	"golang.design/x/clipboard"
)

const windowsPumpInterval = 50 * time.Millisecond

// New returns the Windows clipboard backend using AddClipboardFormatListener.
// The listener window must be pumped from the goroutine that created it, and
// the trigger runs on the poll goroutine, so the window is created lazily
// there on first tick.
func New() (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("init clipboard driver: %w", err)
	}
	var hwnd C.HWND
	changed := func() bool {
		if hwnd == nil {
			hwnd = C.csync_create_listener_window()
			return false
		}
		var c C.int
		C.csync_pump_messages(hwnd, &c)
		return c != 0
	}
	return newSystemBackend("Windows Clipboard", windowsPumpInterval, changed), nil
}
