package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPassID     = "pass_id"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyStep       = "step"
	KeyEntry      = "entry"
	KeyArtifact   = "artifact"
	KeyCategory   = "category"
	KeyDurationMS = "duration_ms"
	KeyCount      = "count"
	KeyPort       = "port"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func PassID(id string) slog.Attr      { return slog.String(KeyPassID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Step(id string) slog.Attr        { return slog.String(KeyStep, id) }
func Entry(name string) slog.Attr     { return slog.String(KeyEntry, name) }
func Artifact(rel string) slog.Attr   { return slog.String(KeyArtifact, rel) }
func Category(c string) slog.Attr     { return slog.String(KeyCategory, c) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Port(p int) slog.Attr            { return slog.Int(KeyPort, p) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
