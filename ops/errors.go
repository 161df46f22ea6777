package ops

import "github.com/mabumusa1/ses-plugin/types"

// ErrExternal indicates that a request to an upstream service failed.
//
// handler.Webhook checks for this error in order to return an HTTP 502
// when applicable.
const ErrExternal = types.SentinelError("external error")
