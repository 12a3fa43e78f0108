// Package audit emits structured records for the closed set of
// security-relevant operations. The catalog and severities are static;
// services log through Record so every entry carries the same shape.
package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Operation identifies an auditable action.
type Operation string

const (
	OpLogin              Operation = "login"
	OpProfileCreate      Operation = "profile_create"
	OpProfileUpdate      Operation = "profile_update"
	OpProfileDelete      Operation = "profile_delete"
	OpFileUpload         Operation = "file_upload"
	OpFileDelete         Operation = "file_delete"
	OpNSFWDetection      Operation = "nsfw_detection"
	OpAdminBan           Operation = "admin_ban"
	OpRateLimitTrip      Operation = "rate_limit_trip"
	OpSuspiciousActivity Operation = "suspicious_activity"
)

// severity per the static catalog.
var severities = map[Operation]zerolog.Level{
	OpLogin:              zerolog.InfoLevel,
	OpProfileCreate:      zerolog.InfoLevel,
	OpProfileUpdate:      zerolog.InfoLevel,
	OpProfileDelete:      zerolog.WarnLevel,
	OpFileUpload:         zerolog.InfoLevel,
	OpFileDelete:         zerolog.WarnLevel,
	OpNSFWDetection:      zerolog.WarnLevel,
	OpAdminBan:           zerolog.WarnLevel,
	OpRateLimitTrip:      zerolog.WarnLevel,
	OpSuspiciousActivity: zerolog.ErrorLevel,
}

// Known reports whether op belongs to the catalog.
func Known(op Operation) bool {
	_, ok := severities[op]
	return ok
}

// Record emits one audit entry with the request's envelope identifiers
// attached. Unknown operations are ignored: the catalog is closed.
func Record(ctx context.Context, op Operation, fields map[string]any) {
	level, ok := severities[op]
	if !ok {
		return
	}

	event := log.WithLevel(level).
		Str("audit", string(op))

	if env := envelope.Get(ctx); env != nil {
		event = event.
			Str("correlation_id", env.CorrelationID).
			Str("trace_id", env.TraceID)
		switch env.Principal.Kind {
		case envelope.PrincipalUser:
			event = event.Int64("user_id", env.Principal.UserID)
		case envelope.PrincipalAdmin:
			event = event.Int64("admin_id", env.Principal.AdminID)
		}
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("audit")
}
