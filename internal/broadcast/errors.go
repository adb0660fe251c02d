package broadcast

import "fmt"

type panicError struct{ v any }

func (e *panicError) Error() string { return fmt.Sprintf("sender panicked: %v", e.v) }
