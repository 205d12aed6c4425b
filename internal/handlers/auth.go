package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/handlers/render"
	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/service/auth"
)

// Public representation of user, credential material never leaves the service
type userResponse struct {
	ID           uuid.UUID `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImage"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, ProfileImage: u.ProfileImage}
}

type tokensResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       uuid.UUID `json:"userId"`
}

func newTokensResponse(s models.Session) tokensResponse {
	return tokensResponse{AccessToken: s.Pair.Access.Value, RefreshToken: s.Pair.Refresh.Value, UserID: s.User.ID}
}

func internalError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	l.Error(msg, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username     string `json:"username" validate:"required,max=50,username"`
		Password     string `json:"password" validate:"required,max=72"`
		Email        string `json:"email" validate:"required,email"`
		ProfileImage string `json:"profileImage" validate:"omitempty,max=2048,uri"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := authService.Register(r.Context(), auth.RegisterParams{
			Username:     data.Username,
			Password:     data.Password,
			Email:        data.Email,
			ProfileImage: data.ProfileImage,
		})
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrMissingField), errors.Is(err, apperrors.ErrInvalidField):
			render.ValidationError(w, err.Error())
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusBadRequest)
		default:
			internalError(w, l, "error while registering user", err)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := authService.Login(r.Context(), data.Username, data.Password)
		switch {
		case err == nil:
			render.JSON(w, newTokensResponse(session))
		case errors.Is(err, apperrors.ErrWrongCredentials):
			render.ServiceError(w, "Wrong username or password", http.StatusBadRequest)
		default:
			internalError(w, l, "error while logging in", err)
		}
	})
}

// Verification failures of refresh token are all reported the same way
func isRefreshRejected(err error) bool {
	return errors.Is(err, apperrors.ErrTokenInvalid) || errors.Is(err, apperrors.ErrTokenMissing)
}

func handleRefresh(authService authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := authService.Refresh(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, newTokensResponse(session))
		case isRefreshRejected(err):
			render.ServiceError(w, "Invalid refresh token", http.StatusBadRequest)
		default:
			internalError(w, l, "error while refreshing tokens", err)
		}
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = authService.Logout(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, response{Message: "Logged out"})
		case isRefreshRejected(err):
			render.ServiceError(w, "Invalid refresh token", http.StatusBadRequest)
		default:
			internalError(w, l, "error while logging out", err)
		}
	})
}

type googleRequest struct {
	Credential string `json:"credential" validate:"required"`
}

func handleGoogleLogin(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[googleRequest](w, r)
		if err != nil {
			return
		}

		session, err := authService.GoogleSignIn(r.Context(), data.Credential)
		switch {
		case err == nil:
			render.JSON(w, newTokensResponse(session))
		case errors.Is(err, apperrors.ErrExternalCredential), errors.Is(err, apperrors.ErrTokenMissing):
			render.ServiceError(w, "Invalid Google credential", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User does not exist, register first", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrNotConfigured):
			render.ServiceError(w, "Google sign in is not available", http.StatusServiceUnavailable)
		default:
			internalError(w, l, "error while signing in with google", err)
		}
	})
}

func handleGoogleRegister(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[googleRequest](w, r)
		if err != nil {
			return
		}

		user, err := authService.GoogleSignUp(r.Context(), data.Credential)
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrExternalCredential), errors.Is(err, apperrors.ErrTokenMissing):
			render.ServiceError(w, "Invalid Google credential", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrNotConfigured):
			render.ServiceError(w, "Google sign in is not available", http.StatusServiceUnavailable)
		default:
			internalError(w, l, "error while signing up with google", err)
		}
	})
}
