package convo

// Viewport is the scrollable rendering surface of the message list.
// Offsets are in whatever unit the surface renders (pixels, rows); the
// controllers only do arithmetic on them.
type Viewport interface {
	// ScrollTop returns the current offset from the top of the content.
	ScrollTop() int
	// ScrollHeight returns the total content height.
	ScrollHeight() int
	// SetScrollTop moves the viewport to the given offset.
	SetScrollTop(top int)
	// ScrollToEnd jumps to the newest message.
	ScrollToEnd()
	// AfterRender runs fn once after the next render pass, when layout
	// measurements reflect newly committed content.
	AfterRender(fn func())
}

// VisibilityNotifier is the platform visibility-detection boundary. An
// implementation reports a message id each time at least half of its rendered
// area becomes visible. Reports are not deduplicated.
type VisibilityNotifier interface {
	Observe(messageID string)
	Unobserve(messageID string)
	SetOnVisible(fn func(messageID string))
}

// MessageLocator resolves rendered messages for the reply "jump to original"
// flow.
type MessageLocator interface {
	// Position returns the top offset of the rendered message, if loaded.
	Position(messageID string) (top int, ok bool)
	Highlight(messageID string)
	Unhighlight(messageID string)
}

// Surface is everything the rendered message list provides to the controller
// cluster. The TUI message thread implements it; tests use fakes.
type Surface interface {
	Viewport
	VisibilityNotifier
	MessageLocator
}
