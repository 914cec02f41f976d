package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
)

// VerifyAuthToken aborts the request unless the Authorization header carries
// a token the gate accepts.
func VerifyAuthToken(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.Request.Header.Get("Authorization")
		identity, err := gate.Verify(c.Request.Context(), authHeader)
		if err != nil {
			problem := reject.FromError(err)
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}

		utils.SetIdentityCtx(identity, c)
		c.Next()
	}
}
