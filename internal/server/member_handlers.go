package server

import (
	"community/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMe handles GET /api/members/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	member, err := s.memberService.GetMe(c.UserContext(), memberID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(member)
}

// UpdateProfile handles PATCH /api/members/me. The nickname is required;
// profileImage is an optional multipart file replacing the current image.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		Nickname string `json:"nickname" form:"nickname"`
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

	member, err := s.memberService.UpdateProfile(ctx, memberID(c), req.Nickname, imageURL)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(member)
}

// UpdatePassword handles PUT /api/members/me/password
func (s *Server) UpdatePassword(c *fiber.Ctx) error {
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	err := s.memberService.UpdatePassword(c.UserContext(), service.UpdatePasswordInput{
		MemberID:        memberID(c),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Withdraw handles DELETE /api/members/me. The account can be restored by
// logging in again within the grace window; the current token is revoked.
func (s *Server) Withdraw(c *fiber.Ctx) error {
	if err := s.memberService.Withdraw(c.UserContext(), memberID(c)); err != nil {
		return respondError(c, err)
	}
	s.revokeCurrentToken(c)
	return c.SendStatus(fiber.StatusNoContent)
}
