package envelope

// Error codes. Codes are stable identifiers; messages are for humans.
const (
	CodePathNotFound     = "PATH_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeIOError          = "IO_ERROR"
	CodeSymlinkLoop      = "SYMLINK_LOOP"
	CodeLoadError        = "LOAD_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
)

// Error is a coded error carried in an envelope.
type Error struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Path        string         `json:"path,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
}

// NewError creates a non-recoverable coded error.
func NewError(code, message string) Error {
	return Error{Code: code, Message: message}
}

// WithPath returns a copy of e scoped to path.
func (e Error) WithPath(path string) Error {
	e.Path = path
	return e
}

// WithContext returns a copy of e with an extra context value.
func (e Error) WithContext(key string, value any) Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	e.Context = ctx
	return e
}

func (e Error) Error() string {
	if e.Path != "" {
		return e.Code + ": " + e.Message + " (" + e.Path + ")"
	}
	return e.Code + ": " + e.Message
}
