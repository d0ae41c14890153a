package devserver

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const otpTTL = 5 * time.Minute

// Account is one seeded user the reference server will authenticate.
type Account struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Role         string
	ProfilePic   string
	Organization string
	passwordHash []byte
}

type pendingVerification struct {
	accountID string
	otp       string
	expiresAt time.Time
}

// authRegistry holds accounts, outstanding OTP exchanges, and issued
// bearer tokens.
type authRegistry struct {
	mu       sync.RWMutex
	accounts map[string]*Account            // email -> account
	byID     map[string]*Account            // id -> account
	pending  map[string]pendingVerification // verifyToken -> exchange
	tokens   map[string]string              // bearer token -> account id
	otp      string                         // fixed OTP when non-empty
}

func newAuthRegistry(fixedOTP string) *authRegistry {
	return &authRegistry{
		accounts: make(map[string]*Account),
		byID:     make(map[string]*Account),
		pending:  make(map[string]pendingVerification),
		tokens:   make(map[string]string),
		otp:      fixedOTP,
	}
}

// seed registers an account with a bcrypt-hashed password.
func (r *authRegistry) seed(a Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.passwordHash = hash
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.accounts[strings.ToLower(a.Email)] = &a
	r.byID[a.ID] = &a
	r.mu.Unlock()
	return nil
}

func (r *authRegistry) account(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

func (r *authRegistry) resolveToken(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokens[token]
	return id, ok
}

func (r *authRegistry) newOTP() string {
	if r.otp != "" {
		return r.otp
	}
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "0000"
	}
	return fmt.Sprintf("%04d", n.Int64())
}

type loginRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DeviceToken string `json:"deviceToken"`
	DeviceType  int    `json:"deviceType"`
}

// accountJSON mirrors the user document shape the production API returns
// on the auth endpoints.
func accountJSON(a *Account, verifyToken string) gin.H {
	return gin.H{
		"_id":         a.ID,
		"firstName":   a.FirstName,
		"lastName":    a.LastName,
		"email":       a.Email,
		"profilePic":  a.ProfilePic,
		"role":        gin.H{"name": a.Role},
		"verifyToken": verifyToken,
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		s.auth.mu.RLock()
		account, ok := s.auth.accounts[strings.ToLower(req.Email)]
		s.auth.mu.RUnlock()
		if !ok || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(req.Password)) != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid email or password"})
			return
		}

		verifyToken := uuid.NewString()
		otp := s.auth.newOTP()
		s.auth.mu.Lock()
		s.auth.pending[verifyToken] = pendingVerification{
			accountID: account.ID,
			otp:       otp,
			expiresAt: time.Now().Add(otpTTL),
		}
		s.auth.mu.Unlock()

		// A real deployment sends the OTP out of band; here it goes to
		// the server log so a developer can complete the flow.
		s.log.Info("issued verification code",
			"email", account.Email,
			"otp", otp,
		)

		c.JSON(http.StatusOK, gin.H{
			"message":  "Verification code sent",
			"response": accountJSON(account, verifyToken),
		})
	}
}

type verifyRequest struct {
	VerifyToken string `json:"verifyToken" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
}

func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		s.auth.mu.Lock()
		pending, ok := s.auth.pending[req.VerifyToken]
		if ok {
			delete(s.auth.pending, req.VerifyToken)
		}
		s.auth.mu.Unlock()

		if !ok || time.Now().After(pending.expiresAt) || pending.otp != req.OTP {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification code"})
			return
		}

		account, ok := s.auth.account(pending.accountID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown account"})
			return
		}

		token := uuid.NewString()
		refresh := uuid.NewString()
		s.auth.mu.Lock()
		s.auth.tokens[token] = account.ID
		s.auth.mu.Unlock()

		c.JSON(http.StatusOK, gin.H{
			"message":      "Verified",
			"token":        token,
			"refreshToken": refresh,
			"response":     accountJSON(account, ""),
		})
	}
}

// requireAuth rejects requests without a valid bearer token and stashes
// the account id in the context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}
		id, ok := s.auth.resolveToken(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}
		c.Set("userID", id)
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// The websocket handshake from browsers cannot set headers, so the
	// token may ride in the query string instead.
	return r.URL.Query().Get("token")
}
