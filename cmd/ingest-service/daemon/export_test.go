package daemon

// SetArgs sets the arguments for the root command. Used in tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}
