package utils

import "github.com/google/uuid"

// GenID returns a new message identifier.
func GenID() string { return uuid.NewString() }

// GenChannelID returns a new channel identifier with a stable prefix so raw
// store keys are recognizable in the inspect tool.
func GenChannelID() string { return "ch_" + uuid.NewString() }
