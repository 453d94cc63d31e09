package handler

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request / Response types ---

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	Token       string `json:"token"        validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type confirmEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type assignRoleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role"  validate:"required"`
}

// userResponse carries the identity together with a freshly minted bearer
// token, mirroring what register/login/current-user return.
type userResponse struct {
	Email          string   `json:"email"`
	DisplayName    string   `json:"display_name"`
	EmailConfirmed bool     `json:"email_confirmed"`
	Token          string   `json:"token"`
	Roles          []string `json:"roles"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type checkEmailResponse struct {
	Exists bool `json:"exists"`
}
