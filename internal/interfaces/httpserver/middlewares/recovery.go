package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"threadline/internal/utils/platformerrors"
)

// Recovery turns panics into a 500 problem document.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Str("request_id", RequestIDFromContext(c)).
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.Abort()
				return
			}
			platformerrors.WriteProblem(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeInternal, "panic", errors.New(fmt.Sprint(rec)), "0c1d2e3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f"), log)
		}()
		c.Next()
	}
}
