package admin

// Sessions returns the number of sessions currently held.
func (h *Handler) Sessions() int {
	return h.sessions.Len()
}
