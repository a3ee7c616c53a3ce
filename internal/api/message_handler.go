package api

import "github.com/gofiber/fiber/v2"

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	msg, err := s.messages.Send(c.UserContext(), userID(c), req.Chat, req.Content, req.Attachments)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) allMessages(c *fiber.Ctx) error {
	msgs, err := s.messages.List(c.UserContext(), c.Params("chatId"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	msg, err := s.messages.MarkRead(c.UserContext(), c.Params("messageId"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(msg)
}
