package options

import (
	"context"

	log "github.com/rs/zerolog"
)

// CommonOptions are shared by all the commands.
type CommonOptions struct {
	Ctx      context.Context
	Logger   log.Logger
	LogLevel string
}
