package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/popup"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
)

type feedApi struct {
	auth     *authenticator
	sessions *readtrack.Registry
	validate *validator.Validate
}

func registerFeedAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := feedApi{auth: auth, sessions: deps.Sessions, validate: deps.Validate}

	fg := g.Group("/feed", jwt, parentMiddleware())
	fg.GET("", api.retrieve)
	fg.PUT("/selection", api.selectStudent)
	fg.GET("/badges", api.badges)
	fg.POST("/:kind/:id/read", api.markRead)

	pg := g.Group("/popups", jwt, parentMiddleware())
	pg.GET("/current", api.currentPopup)
	pg.POST("/current/dismiss", api.dismissPopup)
}

// session returns the live session of the signed-in parent, opening it if needed.
func (api *feedApi) session(ctx echo.Context) (*readtrack.Session, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context user")
	}
	return api.sessions.Open(identityOf(usr)), nil
}

// Handlers

// retrieve re-runs the aggregation and returns the selected student's feed.
func (api *feedApi) retrieve(ctx echo.Context) error {
	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	// a stale result means a newer request owns the state; answer with it
	if err = sess.Refresh(ctx.Request().Context()); err != nil && errors.Cause(err) != readtrack.ErrStaleResult {
		return errors.Wrap(err, "refreshing feed")
	}
	return ctx.JSON(http.StatusOK, newFeedResponse(sess))
}

func (api *feedApi) selectStudent(ctx echo.Context) error {
	var data SelectionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelectionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	if _, err = sess.Select(data.StudentID); err != nil {
		if errors.Cause(err) == readtrack.ErrStudentNotLinked {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return errors.Wrap(err, "selecting student")
	}
	return ctx.JSON(http.StatusOK, newFeedResponse(sess))
}

func (api *feedApi) badges(ctx echo.Context) error {
	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Badges())
}

func (api *feedApi) markRead(ctx echo.Context) error {
	kind, ok := school.ParseKind(ctx.Param("kind"))
	if !ok || !core.IsDocID(ctx.Param("id")) {
		return errHttpNotFound
	}

	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	badges, err := sess.MarkRead(ctx.Request().Context(), kind, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking as read")
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *feedApi) currentPopup(ctx echo.Context) error {
	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	q := sess.Popups()
	resp := PopupResponse{State: q.State().String(), Pending: q.Len()}
	if it, ok := q.Current(); ok {
		resp.Current = &it
	}
	return ctx.JSON(http.StatusOK, resp)
}

// dismissPopup closes the shown popup; its receipt is written in the background.
func (api *feedApi) dismissPopup(ctx echo.Context) error {
	sess, err := api.session(ctx)
	if err != nil {
		return err
	}
	q := sess.Popups()
	if _, err = q.Dismiss(); err != nil {
		if errors.Cause(err) == popup.ErrNothingShown {
			return errHttpNotFound
		}
		return errors.Wrap(err, "dismissing popup")
	}
	resp := PopupResponse{State: q.State().String(), Pending: q.Len()}
	if it, ok := q.Current(); ok {
		resp.Current = &it
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	SelectionRequest struct {
		StudentID string `json:"student_id" validate:"required,docid"`
	}

	FeedResponse struct {
		Selected *school.Student  `json:"selected"`
		Students []school.Student `json:"students"`
		Feed     readtrack.Feed   `json:"feed"`
		Badges   readtrack.Badges `json:"badges"`
	}

	PopupResponse struct {
		State   string      `json:"state"`
		Current *popup.Item `json:"current"`
		Pending int         `json:"pending"`
	}
)

func (sr *SelectionRequest) Validate(validate *validator.Validate) error {
	sr.StudentID = core.CleanString(sr.StudentID)
	return validate.Struct(sr)
}

func newFeedResponse(sess *readtrack.Session) FeedResponse {
	resp := FeedResponse{
		Students: append([]school.Student{}, sess.Feed().Students...),
		Feed:     sess.SelectedFeed(),
		Badges:   sess.Badges(),
	}
	if st, ok := sess.Selected(); ok {
		resp.Selected = &st
	}
	return resp
}
