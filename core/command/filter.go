package command

// Filter gates command admission. Filters are pure judges: Process must not
// mutate the command, only approve or reject it, and must tolerate being
// called repeatedly and concurrently for the same command.
type Filter interface {
	// Order is the sort key for chain evaluation (ascending). Ties keep
	// insertion order.
	Order() float64

	// Process reports whether the command may proceed. An error counts as a
	// rejection and is carried into the command's failure when the command
	// was built with WithFailIfFiltered.
	Process(cmd *Command) (bool, error)
}

// FilterFunc adapts a closure to the Filter interface.
type FilterFunc struct {
	order float64
	fn    func(cmd *Command) (bool, error)
}

// NewFilterFunc creates a filter from a closure. A nil closure approves
// everything.
func NewFilterFunc(order float64, fn func(cmd *Command) (bool, error)) *FilterFunc {
	return &FilterFunc{order: order, fn: fn}
}

func (f *FilterFunc) Order() float64 { return f.order }

func (f *FilterFunc) Process(cmd *Command) (bool, error) {
	if f.fn == nil {
		return true, nil
	}
	return f.fn(cmd)
}
