package usage

import "errors"

// ErrLimitReached indicates the user exceeded their analysis allowance.
var ErrLimitReached = errors.New("limit reached")
