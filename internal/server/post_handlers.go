package server

import (
	"community/internal/cascade"
	"community/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	// KeepImageIDs is only read on update; omitting it keeps every image.
	KeepImageIDs []uint `json:"keep_image_ids"`
}

// DeletePostResponse reports how many dependents the cascade tombstoned.
type DeletePostResponse struct {
	PostID  uint           `json:"post_id"`
	Cascade cascade.Result `json:"cascade"`
}

// ListPosts handles GET /api/posts
func (s *Server) ListPosts(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPageSize)
	posts, err := s.postService.ListPosts(c.UserContext(), p.Page, p.Size)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  p.Page,
		"size":  p.Size,
	})
}

// GetPost handles GET /api/posts/:id and counts the view.
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	detail, err := s.postService.GetPostDetail(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		MemberID: memberID(c),
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		MemberID:     memberID(c),
		PostID:       postID,
		Title:        req.Title,
		Content:      req.Content,
		KeepImageIDs: req.KeepImageIDs,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id. Comments, images and likes are
// tombstoned with the post.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	res, err := s.postService.DeletePost(c.UserContext(), memberID(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(DeletePostResponse{PostID: postID, Cascade: res})
}
