package server

import (
	"fmt"
	"strconv"
	"time"

	"ebantek/internal/cache"
	"ebantek/internal/models"
	"ebantek/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 24 * time.Hour

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new account with a fixed role
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{name=string,email=string,password=string,phone=string,role=string,organization=string,position=string} true "Signup request"
// @Success 201 {object} object{token=string,user=models.User,dashboard=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Name         string      `json:"name"`
		Email        string      `json:"email"`
		Password     string      `json:"password"`
		Phone        string      `json:"phone"`
		Role         models.Role `json:"role"`
		Organization string      `json:"organization"`
		Position     string      `json:"position"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Nama, email, dan kata sandi wajib diisi"))
	}

	if err := validation.ValidateName(req.Name); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	// The role is chosen at registration and never changes afterwards.
	if req.Role == "" {
		req.Role = models.RolePemohon
	}
	if !req.Role.Valid() {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Peran tidak dikenal"))
	}
	if req.Role != models.RolePemohon && (req.Organization == "" || req.Position == "") {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Instansi dan jabatan wajib diisi untuk peran staf"))
	}

	existing, err := s.userRepo.GetByEmail(c.Context(), req.Email)
	if err != nil {
		return respondServiceError(c, err)
	}
	if existing != nil {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewValidationError("Email sudah terdaftar"))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		Password:     string(hashedPassword),
		Phone:        req.Phone,
		Role:         req.Role,
		Organization: req.Organization,
		Position:     req.Position,
		// Verification email delivery is out of scope; accounts are usable
		// immediately.
		IsEmailVerified: true,
	}

	if createErr := s.userRepo.Create(c.Context(), user); createErr != nil {
		return respondServiceError(c, createErr)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":     token,
		"user":      user,
		"dashboard": models.DashboardPathFor(user.Role),
	})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate and return a JWT plus the role's dashboard path
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User,dashboard=string,permissions=[]string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	user, err := s.userRepo.GetByEmail(c.Context(), req.Email)
	if err != nil {
		return respondServiceError(c, err)
	}
	if user == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Email atau kata sandi salah"))
	}

	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); cmpErr != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Email atau kata sandi salah"))
	}

	token, err := s.generateToken(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token":       token,
		"user":        user,
		"dashboard":   models.DashboardPathFor(user.Role),
		"permissions": user.Permissions(),
	})
}

// Logout handles POST /api/auth/logout. The token's jti goes on the Redis
// blacklist until the token would have expired anyway.
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	if jti != "" {
		ttl := tokenLifetime
		if exp, ok := c.Locals("tokenExp").(int64); ok {
			if remaining := time.Until(time.Unix(exp, 0)); remaining > 0 {
				ttl = remaining
			}
		}
		if err := cache.BlacklistToken(c.Context(), jti, ttl); err != nil {
			return respondServiceError(c, err)
		}
	}
	return c.JSON(fiber.Map{"message": "Berhasil keluar"})
}

// Me handles GET /api/auth/me. It returns the profile together with the
// derived permission set and dashboard path so clients never hardcode the
// role matrix.
func (s *Server) Me(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	return c.JSON(fiber.Map{
		"user":        actor,
		"permissions": actor.Permissions(),
		"dashboard":   models.DashboardPathFor(actor.Role),
	})
}

// generateToken creates a JWT for the given user. The role rides along as a
// claim for logging and quick client checks; authorization always re-reads
// the account record.
func (s *Server) generateToken(user *models.User) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": string(user.Role),
		"iss":  tokenIssuer,
		"aud":  tokenAudience,
		"exp":  now.Add(tokenLifetime).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  s.generateJTI(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// generateJTI creates a unique JWT ID to support revocation.
func (s *Server) generateJTI() string {
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}
