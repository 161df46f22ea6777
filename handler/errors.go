package handler

import "github.com/mabumusa1/ses-plugin/types"

const ErrBadPayload = types.SentinelError("bad webhook payload")

const ErrUnknownType = types.SentinelError("unknown webhook type")
