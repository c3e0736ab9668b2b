package camera

// Use starts c, runs fn and releases c on every exit path, panics included.
// If c cannot be started fn is not called and ErrNotStarted is returned.
func Use(c *Controller, fn func(*Controller) error) error {
	defer c.Release()
	if !c.Start() {
		return ErrNotStarted
	}
	return fn(c)
}
