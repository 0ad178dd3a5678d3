package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/perm"
)

const identityKey = "caseboard.identity"

// authenticate resolves the caller's identity from the bearer token. Pages
// and the event stream may pass the token as ?access_token= since browsers
// and some websocket clients cannot set headers.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.verifier == nil {
			if s.cfg.Anonymous == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication is not configured")
			}
			c.Set(identityKey, *s.cfg.Anonymous)
			return next(c)
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if strings.TrimSpace(header) == "" {
			if tok := strings.TrimSpace(c.QueryParam("access_token")); tok != "" {
				header = "Bearer " + tok
			}
		}
		id, err := s.verifier.IdentityFromHeader(header)
		if err != nil {
			s.log.WithFields(log.Fields{"path": c.Path()}).WithError(err).Debug("rejected credentials")
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		c.Set(identityKey, id)
		return next(c)
	}
}

func identityFrom(c echo.Context) perm.Identity {
	id, _ := c.Get(identityKey).(perm.Identity)
	return id
}
