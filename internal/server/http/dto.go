package http

import (
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

type accountResponse struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Telephone string     `json:"telephone,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Telephone: a.Telephone,
		ImageURL:  a.ImageURL,
		Role:      string(a.Role),
		Status:    string(a.Status),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		DeletedAt: a.DeletedAt,
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Telephone string `json:"telephone"`
	Password  string `json:"password"`
}

type createAccountRequest struct {
	registerRequest
	Role string `json:"role"`
}

func (r registerRequest) toRegistration() services.Registration {
	return services.Registration{Email: r.Email, Name: r.Name, Telephone: r.Telephone, Password: r.Password}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type recoverPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type emailAvailabilityRequest struct {
	Email     string `json:"email"`
	ExcludeID int64  `json:"excludeId"`
}

type emailAvailabilityResponse struct {
	Available bool `json:"available"`
}

type personalDataRequest struct {
	Version   int64   `json:"version"`
	Name      *string `json:"name"`
	Telephone *string `json:"telephone"`
	ImageURL  *string `json:"imageUrl"`
}

func (r personalDataRequest) toPersonalData() models.PersonalData {
	return models.PersonalData{Name: r.Name, Telephone: r.Telephone, ImageURL: r.ImageURL}
}

type updatePasswordRequest struct {
	Version         int64  `json:"version"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type updateAccountRequest struct {
	personalDataRequest
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

func (r updateAccountRequest) toPatch() models.Patch {
	p := models.Patch{PersonalData: r.toPersonalData(), Email: r.Email}
	if r.Role != nil {
		role := models.Role(*r.Role)
		p.Role = &role
	}
	return p
}

type avatarUploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type avatarDownloadResponse struct {
	URL string `json:"url"`
}
