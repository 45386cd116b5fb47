package domain

import "fmt"

// AppError is the base domain error type. Code is stable; Status is the
// HTTP class the boundary maps it to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrUserNotFound(id string) *AppError {
	return &AppError{Code: "USER_NOT_FOUND", Message: fmt.Sprintf("user %s is not registered", id), Status: 404}
}

func ErrTeamNotFound(id string) *AppError {
	return &AppError{Code: "TEAM_NOT_FOUND", Message: fmt.Sprintf("team %s not found", id), Status: 404}
}

func ErrPlayerNotFound(id string) *AppError {
	return &AppError{Code: "PLAYER_NOT_FOUND", Message: fmt.Sprintf("player %s not found", id), Status: 404}
}

func ErrTransferNotFound(id string) *AppError {
	return &AppError{Code: "TRANSFER_NOT_FOUND", Message: fmt.Sprintf("transfer %s not found", id), Status: 404}
}

func ErrPlayerAlreadyContracted(playerID string) *AppError {
	return &AppError{Code: "PLAYER_ALREADY_CONTRACTED", Message: fmt.Sprintf("player %s is already contracted to a team", playerID), Status: 409}
}

func ErrTransferNotOpen(id string) *AppError {
	return &AppError{Code: "TRANSFER_NOT_OPEN", Message: fmt.Sprintf("transfer %s is not open", id), Status: 409}
}

func ErrInvalidTransferRequest(msg string) *AppError {
	return &AppError{Code: "INVALID_TRANSFER_REQUEST", Message: msg, Status: 409}
}

func ErrMaxTeamsLimitReached(userID string) *AppError {
	return &AppError{Code: "MAX_TEAMS_LIMIT_REACHED", Message: fmt.Sprintf("user %s has reached the team limit", userID), Status: 409}
}

func ErrInadequateBudget(teamID string) *AppError {
	return &AppError{Code: "INADEQUATE_BUDGET", Message: fmt.Sprintf("team %s does not have the required budget", teamID), Status: 400}
}

func ErrInadequatePermissions() *AppError {
	return &AppError{Code: "INADEQUATE_PERMISSIONS", Message: "you don't have the necessary permissions for this", Status: 403}
}

func ErrInvalidInput(msg string) *AppError {
	return &AppError{Code: "INVALID_INPUT", Message: msg, Status: 400}
}

func ErrNothingToUpdate() *AppError {
	return &AppError{Code: "NOTHING_TO_UPDATE", Message: "no updatable fields in request", Status: 400}
}

func ErrIncorrectPassword() *AppError {
	return &AppError{Code: "INCORRECT_PASSWORD", Message: "specified password is incorrect", Status: 400}
}

func ErrInvalidAccessToken() *AppError {
	return &AppError{Code: "INVALID_ACCESS_TOKEN", Message: "missing or invalid credential", Status: 401}
}

func ErrEmailTaken(email string) *AppError {
	return &AppError{Code: "EMAIL_TAKEN", Message: fmt.Sprintf("%s is already registered", email), Status: 409}
}

// ErrInternal wraps infrastructure failures; adapter internals stay out of
// the message.
func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
