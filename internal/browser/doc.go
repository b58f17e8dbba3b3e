// Package browser manages headless Chrome sessions driven through chromedp.
//
// A Session owns exactly one Chrome process. Launch starts it, Close tears it
// down, and teardown escalates to killing the process group when Chrome does
// not exit within the shutdown timeout. Sessions are not shared between
// scans; the rendered fetch and the login-form probe each launch their own.
package browser
