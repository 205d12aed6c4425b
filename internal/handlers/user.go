package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/handlers/render"
	"github.com/nkiryanov/snapgram/internal/handlers/userctx"
	"github.com/nkiryanov/snapgram/internal/logger"
)

func handleUserMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, newUserResponse(user))
	})
}

func handleUserProfile(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ValidationError(w, "Invalid user id")
			return
		}

		user, err := userService.GetProfile(r.Context(), id)
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			internalError(w, l, "error while getting profile", err)
		}
	})
}

func handleUpdateUsername(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,max=50,username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, _ := userctx.FromContext(r.Context())
		updated, err := userService.UpdateUsername(r.Context(), user.ID, data.Username)
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(updated))
		case errors.Is(err, apperrors.ErrMissingField):
			render.ValidationError(w, err.Error())
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Username already taken", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			internalError(w, l, "error while updating username", err)
		}
	})
}
