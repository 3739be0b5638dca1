package mockbackend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const tokenTTL = 24 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid login payload"})
		return
	}
	if !strings.EqualFold(req.Email, s.adminEmail) || req.Password != s.adminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	token, err := s.issueToken(req.Email)
	if err != nil {
		s.logger.Sugar().Errorw("sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "role": "admin"})
}

func (s *Server) issueToken(email string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   email,
		"email": email,
		"role":  "admin",
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Server) validateToken(raw string) (*jwt.Token, error) {
	return jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	})
}

// optionalAuth lets anonymous respondents through but rejects a bearer
// token that does not validate.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid Authorization header"})
			return
		}
		token, err := s.validateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("email", claims["email"])
		}
		c.Next()
	}
}

// Sign computes the payment signature the verify endpoint expects for an
// order and payment id pair.
func Sign(key []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign computes a signature with the server's key.
func (s *Server) Sign(orderID, paymentID string) string {
	return Sign(s.key, orderID, paymentID)
}
