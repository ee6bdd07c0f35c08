package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"ebantek/internal/config"
	"ebantek/internal/models"
	"ebantek/internal/repository"
	"ebantek/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newHandlerTestServer builds a Server over an in-memory sqlite database.
// Redis-backed pieces stay nil; handlers under test must not require them.
func newHandlerTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ServiceRequest{},
		&models.StatusTransition{},
		&models.RequestComment{},
		&models.RequestFile{},
	))

	cfg := &config.Config{
		JWTSecret: "handler-test-secret-0123456789abcdef",
		UploadDir: t.TempDir(),
	}

	s := &Server{
		config:      cfg,
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		requestRepo: repository.NewRequestRepository(db),
	}
	s.userService = service.NewUserService(s.userRepo)
	s.fileService = service.NewFileService(cfg)
	s.requestService = service.NewRequestService(s.requestRepo, s.userRepo, nil, nil)

	return s, db
}

// newTestApp returns a fiber app that trusts the X-Test-User header instead of
// running the JWT middleware, so tests can act as different accounts.
func newTestApp(s *Server) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-Test-User"); v != "" {
			id, err := strconv.Atoi(v)
			if err == nil {
				c.Locals("userID", uint(id))
			}
		}
		return c.Next()
	})
	return app
}

// mustCreateUser inserts an account with the given role directly into the DB.
func mustCreateUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Name:     name,
		Email:    name + "@example.go.id",
		Password: "x",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func asUser(req *http.Request, userID uint) *http.Request {
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	return req
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestParsePagination_Defaults(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, 25, body["limit"])
	assert.Equal(t, 0, body["offset"])
}

func TestParsePagination_Clamping(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	req := httptest.NewRequest(http.MethodGet, "/items?limit=9999&offset=-4", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, maxPaginationLimit, body["limit"])
	assert.Equal(t, 0, body["offset"])
}

func TestRequireActor_MissingUser(t *testing.T) {
	s, _ := newHandlerTestServer(t)
	app := newTestApp(s)
	app.Get("/whoami", func(c *fiber.Ctx) error {
		actor, err := s.requireActor(c)
		if err != nil {
			return nil
		}
		return c.JSON(actor)
	})

	// No X-Test-User header at all
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Header points at a user that does not exist
	resp, err = app.Test(asUser(httptest.NewRequest(http.MethodGet, "/whoami", nil), 9999))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
