package domain

// AuthStatus is the phase of the auth state machine.
type AuthStatus string

const (
	AuthInitial AuthStatus = "initial"
	AuthLoading AuthStatus = "loading"
	AuthSuccess AuthStatus = "success"
	AuthError   AuthStatus = "error"
)

// AuthState is published to the presentation layer on every transition.
// It is never persisted.
type AuthState struct {
	Status  AuthStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

func InitialState() AuthState { return AuthState{Status: AuthInitial} }

func LoadingState() AuthState { return AuthState{Status: AuthLoading} }

func SuccessState(msg string) AuthState { return AuthState{Status: AuthSuccess, Message: msg} }

func ErrorState(msg string) AuthState { return AuthState{Status: AuthError, Message: msg} }

// ConnectionStatus is reported by the connection monitor.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}
