package server

import (
	"errors"
	"io"
	"mime/multipart"

	"community/internal/middleware"
	"community/internal/models"
	"community/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token  string         `json:"token"`
	Member *models.Member `json:"member"`
}

// Signup handles POST /api/auth/signup. It accepts JSON or a multipart
// form with an optional profileImage file.
func (s *Server) Signup(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		Email           string `json:"email" form:"email"`
		Password        string `json:"password" form:"password"`
		ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
		Nickname        string `json:"nickname" form:"nickname"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var imageURL string
	if file, err := c.FormFile("profileImage"); err == nil {
		content, readErr := readUpload(file)
		if readErr != nil {
			return badRequest(c, "Unable to read uploaded file")
		}
		imageURL, err = s.imageService.UploadProfileImage(ctx, content, file.Header.Get("Content-Type"))
		if err != nil {
			return respondError(c, err)
		}
	}

	member, err := s.memberService.Signup(ctx, service.SignupInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Nickname:        req.Nickname,
		ProfileImageURL: imageURL,
	})
	if err != nil {
		return respondError(c, err)
	}

	token, err := s.auth.IssueToken(member.ID)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Member: member})
}

// Login handles POST /api/auth/login. A withdrawn member inside the grace
// window is restored before the token is issued.
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	member, err := s.memberService.Login(c.UserContext(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	token, err := s.auth.IssueToken(member.ID)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.JSON(AuthResponse{Token: token, Member: member})
}

// Refresh handles POST /api/auth/refresh. The presented token is exchanged
// for a new one and revoked.
func (s *Server) Refresh(c *fiber.Ctx) error {
	id := memberID(c)
	token, err := s.auth.IssueToken(id)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	s.revokeCurrentToken(c)
	return c.JSON(fiber.Map{"token": token})
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired.
func (s *Server) Logout(c *fiber.Ctx) error {
	s.revokeCurrentToken(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// revokeCurrentToken blacklists the request's token. Without Redis the token
// stays valid until expiry; live-member checks still apply.
func (s *Server) revokeCurrentToken(c *fiber.Ctx) {
	ctx := c.UserContext()
	err := s.auth.Revoke(ctx, middleware.CurrentToken(c))
	switch {
	case err == nil:
	case errors.Is(err, middleware.ErrNoRevocationStore):
		middleware.Logger.WarnContext(ctx, "token not revoked: no revocation store")
	default:
		middleware.Logger.ErrorContext(ctx, "token revocation failed", "error", err)
	}
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	return io.ReadAll(src)
}
