package screen

// Kind classifies the result of a controller operation.
type Kind int

const (
	OK Kind = iota
	Unauthorized
	Invalid
	ConnectionError
	BackendError
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Unauthorized:
		return "unauthorized"
	case Invalid:
		return "invalid"
	case ConnectionError:
		return "connection_error"
	case BackendError:
		return "backend_error"
	default:
		return "unexpected"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of every backend-touching operation. Message is the
// user-facing notice and is empty on success.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
}

func (o Outcome) Succeeded() bool { return o.Kind == OK }

const (
	msgUnauthorized    = "Unauthorized"
	msgConnectionError = "Database connection error"
	msgUnexpected      = "Unexpected error occurred"
	msgUnknownError    = "Unknown error"
)
