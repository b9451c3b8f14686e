package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

const StatusClientClosedRequest = 499

// ErrorHandler renders err as a ResponseError. Remote 5xx answers and
// transport failures become 502 since the BFF itself is healthy.
func ErrorHandler(log Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		resp := ToResponseError(err)
		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}
		if errors.Is(err, context.Canceled) && errors.Is(c.Request().Context().Err(), context.Canceled) {
			resp.Status = StatusClientClosedRequest
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(resp.Status)
		} else {
			werr = c.JSON(resp.Status, resp)
		}
		if werr != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp, "error", werr)
		}
	}
}

func ToResponseError(err error) *ResponseError {
	resp := &ResponseError{
		Status:       http.StatusInternalServerError,
		Err:          err,
		ErrorCode:    "internal",
		ErrorMessage: http.StatusText(http.StatusInternalServerError),
	}

	var (
		re   *ResponseError
		he   *echo.HTTPError
		verr *models.ValidationError
		rerr *models.RemoteError
		nerr *models.NetworkError
	)
	switch {
	case errors.As(err, &re):
		return re
	case errors.As(err, &he):
		resp.Status = he.Code
		resp.ErrorCode = "http"
		resp.ErrorMessage = fmt.Sprint(he.Message)
	case errors.As(err, &verr):
		resp.Status = http.StatusBadRequest
		resp.ErrorCode = "validation"
		resp.ErrorMessage = verr.Message
		resp.Field = verr.Field
	case errors.As(err, &rerr):
		resp.Status = rerr.Status
		if rerr.Status >= http.StatusInternalServerError || rerr.Status < http.StatusBadRequest {
			resp.Status = http.StatusBadGateway
		}
		resp.ErrorCode = "remote"
		resp.ErrorMessage = models.UserMessage(rerr)
	case errors.As(err, &nerr):
		resp.Status = http.StatusBadGateway
		resp.ErrorCode = "network"
		resp.ErrorMessage = models.UserMessage(nerr)
	}
	return resp
}
