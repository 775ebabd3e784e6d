package server

import (
	"strconv"

	"community/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListImages handles GET /api/posts/:id/images
func (s *Server) ListImages(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	images, err := s.imageService.ListImages(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(images)
}

// UploadImage handles POST /api/posts/:id/images. The optional order_index
// form field pins the position; otherwise the image is appended.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	file, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}
	content, err := readUpload(file)
	if err != nil {
		return badRequest(c, "Unable to read uploaded file")
	}

	in := service.UploadImageInput{
		MemberID:    memberID(c),
		PostID:      postID,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	}
	if raw := c.FormValue("order_index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "Invalid order index")
		}
		in.OrderIndex = &idx
	}

	uploaded, err := s.imageService.Upload(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(uploaded)
}

// ReorderImages handles PUT /api/posts/:id/images/order. image_ids must list
// every live image of the post exactly once.
func (s *Server) ReorderImages(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		ImageIDs []uint `json:"image_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	images, err := s.imageService.Reorder(c.UserContext(), memberID(c), postID, req.ImageIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(images)
}

// DeleteImage handles DELETE /api/posts/:id/images/:imageId
func (s *Server) DeleteImage(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	imageID, err := s.parseID(c, "imageId")
	if err != nil {
		return nil
	}

	if err := s.imageService.DeleteImage(c.UserContext(), memberID(c), postID, imageID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
