package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/push"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
)

type userApi struct {
	auth     *authenticator
	svc      *user.Service
	push     *push.Service
	sessions *readtrack.Registry
	validate *validator.Validate
	logger   core.Logger
}

func newUserApi(auth *authenticator, deps ServerDeps) *userApi {
	return &userApi{
		auth:     auth,
		svc:      deps.UserSvc,
		push:     deps.PushSvc,
		sessions: deps.Sessions,
		validate: deps.Validate,
		logger:   deps.Logger,
	}
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := newUserApi(auth, deps)

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/logout", api.logout, jwt)
	ag.POST("/token-refresh", api.refreshToken, jwt)
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := newUserApi(auth, deps)

	mg := g.Group("/me", jwt)
	mg.GET("", api.retrieveMe)
	mg.DELETE("", api.destroyMe)
	mg.PUT("/device-token", api.registerDeviceToken)

	ug := g.Group("/users", jwt, adminMiddleware())
	ug.POST("", api.create)
	ug.PUT("/:id/students", api.linkStudents)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.generateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// logout revokes the request's token and closes the parent's session.
func (api *userApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err = api.auth.revoke(ctx.Request().Context(), claims); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	api.sessions.Drop(claims.Subject)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) retrieveMe(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	resp := MeResponse{User: usr, Students: []school.Student{}}
	if usr.IsParent() {
		sess := api.sessions.Open(identityOf(usr))
		if len(sess.Feed().Students) == 0 && len(usr.StudentIDs) > 0 {
			if err = sess.Refresh(ctx.Request().Context()); err != nil && errors.Cause(err) != readtrack.ErrStaleResult {
				return errors.Wrap(err, "refreshing feed")
			}
		}
		resp.Students = append(resp.Students, sess.Feed().Students...)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// destroyMe deletes the account, then signs it out.
func (api *userApi) destroyMe(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err = api.svc.Delete(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if err = api.auth.revoke(ctx.Request().Context(), claims); err != nil {
		api.logger.Error("revoking token of deleted user", err, map[string]interface{}{"uid": claims.Subject})
	}
	api.sessions.Drop(claims.Subject)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) registerDeviceToken(ctx echo.Context) error {
	var data DeviceTokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeviceTokenRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err = api.push.RegisterToken(ctx.Request().Context(), claims.Subject, data.Token); err != nil {
		return errors.Wrap(err, "registering device token")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if data.Role == "" {
		data.Role = user.RoleParent
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// linkStudents replaces the students of a parent; a live session of that parent is reset.
func (api *userApi) linkStudents(ctx echo.Context) error {
	var data user.LinkStudents
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkStudents")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.LinkStudents(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "linking students")
	}
	if _, live := api.sessions.Get(usr.ID); live {
		api.sessions.Open(identityOf(usr))
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	MeResponse struct {
		user.User
		Students []school.Student `json:"students"`
	}

	DeviceTokenRequest struct {
		Token string `json:"token" validate:"required,notblank"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
