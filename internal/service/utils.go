package service

import "fmt"

// requireExactlyOne enforces the contract of the guarded state-machine
// UPDATEs: zero rows means the guard filtered the transition out under a
// concurrent writer, anything above one means a broken predicate. Either
// way the surrounding transaction must roll back.
func requireExactlyOne(rows int64, operation string) error {
	switch {
	case rows == 1:
		return nil
	case rows == 0:
		return fmt.Errorf("%s matched no live row", operation)
	default:
		return fmt.Errorf("%s matched %d rows", operation, rows)
	}
}
