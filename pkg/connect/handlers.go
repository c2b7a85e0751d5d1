package connect

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

// Handler exposes the authorization state of a Client over HTTP. The
// platform layer feeds redirect and resume events through it.
type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

func ErrorLogMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("Error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
		}
		return err
	}
}

func (h *Handler) MountRoutes(group *echo.Group) {
	group.Use(ErrorLogMiddleware)
	group.GET("/login", h.LoginEndpoint)
	group.GET("/callback", h.CallbackEndpoint)
	group.GET("/resume", h.ResumeEndpoint)
	group.GET("/status", h.StatusEndpoint)
	group.POST("/logout", h.LogoutEndpoint)
	group.GET("/userinfo", h.UserinfoEndpoint)
}

// LoginEndpoint serves an access token from the session when
// possible, otherwise redirects the user agent to the authorization
// server.
func (h *Handler) LoginEndpoint(c echo.Context) error {
	token, err := h.client.RequestAccess(c.Request().Context())
	if err != nil {
		var authzErr *AuthorizationRequiredError
		if errors.As(err, &authzErr) {
			return c.Redirect(http.StatusFound, authzErr.AuthorizationURL)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        "server_error",
			Description: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token_type":   "Bearer",
		"access_token": token,
	})
}

// CallbackEndpoint receives the authorization redirect and feeds its
// query string into the flow.
func (h *Handler) CallbackEndpoint(c echo.Context) error {
	result, err := h.client.Flow().HandleRedirect(c.Request().Context(), c.QueryString())
	if err != nil {
		switch {
		case errors.Is(err, ErrStateMismatch):
			return echo.NewHTTPError(http.StatusBadRequest, &oauth2.Error{
				Code:        "invalid_request",
				Description: "state mismatch",
			})
		case errors.Is(err, ErrUserCancelled):
			return echo.NewHTTPError(http.StatusBadRequest, &oauth2.Error{
				Code:        "access_denied",
				Description: "user cancelled authorization",
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        "server_error",
			Description: err.Error(),
		})
	}

	if result.Code != "" {
		// Confidential client: the backend exchanges the code.
		return c.JSON(http.StatusOK, map[string]string{"code": result.Code})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"token_type":   "Bearer",
		"access_token": result.AccessToken,
	})
}

// ResumeEndpoint signals that the app became active without a
// redirect; a pending attempt is abandoned.
func (h *Handler) ResumeEndpoint(c echo.Context) error {
	h.client.Flow().HandleResume()
	return c.NoContent(http.StatusNoContent)
}

type statusResponse struct {
	Authorized        bool       `json:"authorized"`
	FlowState         string     `json:"flow_state"`
	AccessTokenExpiry *time.Time `json:"access_token_expiry,omitempty"`
}

func (h *Handler) StatusEndpoint(c echo.Context) error {
	status := statusResponse{
		Authorized: h.client.IsAuthorized(),
		FlowState:  string(h.client.Flow().State()),
	}
	if session := h.client.Session(); !session.AccessTokenExpiry.IsZero() {
		expiry := session.AccessTokenExpiry
		status.AccessTokenExpiry = &expiry
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) LogoutEndpoint(c echo.Context) error {
	if err := h.client.Revoke(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        "server_error",
			Description: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) UserinfoEndpoint(c echo.Context) error {
	claims, err := h.client.UserInfo(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrMissingAccessToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, &oauth2.Error{
				Code:        "invalid_token",
				Description: "no access token",
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        "server_error",
			Description: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, claims)
}
