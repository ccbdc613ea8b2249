package replica

import (
	"time"

	"github.com/oklog/ulid/v2"
)

func newID() string { return ulid.Make().String() }

// now is truncated to the millisecond precision the store keeps, so optimistic
// items match what the next broadcast carries.
func now() time.Time { return time.UnixMilli(time.Now().UnixMilli()) }
