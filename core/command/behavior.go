package command

// Behavior supplies a command's business logic. The processor drives the
// lifecycle; Behavior decides what the command actually does at each step.
//
// Implementations must be safe for concurrent calls: InterpretResponse in
// particular may run while CanExecute or Execute is still in flight.
type Behavior interface {
	// CanExecute reports whether the command can be issued right now.
	// Returning false parks the command as Blocked (or fails it, if the
	// command was built with WithFailIfBlocked). An error fails the command.
	CanExecute(cmd *Command) (bool, error)

	// Execute issues the command (sends it over the wire, starts the
	// operation, ...). An error fails the command with exactly that error.
	Execute(cmd *Command) error

	// InterpretResponse inspects an inbound input. Returning true claims the
	// input and completes the command successfully; the input is not offered
	// to any further command. An error fails this command but does not stop
	// routing to others.
	InterpretResponse(cmd *Command, input any) (bool, error)
}

// Funcs adapts closures to the Behavior interface. Nil fields fall back to
// permissive defaults: can always execute, execution is a no-op, and no
// input is ever claimed.
type Funcs struct {
	CanExecuteFunc        func(cmd *Command) (bool, error)
	ExecuteFunc           func(cmd *Command) error
	InterpretResponseFunc func(cmd *Command, input any) (bool, error)
}

func (f Funcs) CanExecute(cmd *Command) (bool, error) {
	if f.CanExecuteFunc == nil {
		return true, nil
	}
	return f.CanExecuteFunc(cmd)
}

func (f Funcs) Execute(cmd *Command) error {
	if f.ExecuteFunc == nil {
		return nil
	}
	return f.ExecuteFunc(cmd)
}

func (f Funcs) InterpretResponse(cmd *Command, input any) (bool, error) {
	if f.InterpretResponseFunc == nil {
		return false, nil
	}
	return f.InterpretResponseFunc(cmd, input)
}
