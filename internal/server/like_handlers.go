package server

import "github.com/gofiber/fiber/v2"

// ToggleLike handles POST /api/posts/:id/likes
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	state, err := s.likeService.ToggleLike(c.UserContext(), memberID(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// CountLikes handles GET /api/posts/:id/likes
func (s *Server) CountLikes(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	count, err := s.likeService.CountLikes(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"post_id": postID, "like_count": count})
}
