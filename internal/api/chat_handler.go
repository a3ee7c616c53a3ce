package api

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) accessChat(c *fiber.Ctx) error {
	var req accessChatReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	chat, created, err := s.chats.AccessDirectChat(c.UserContext(), userID(c), req.UserID)
	if err != nil {
		return err
	}
	if created {
		return c.Status(fiber.StatusCreated).JSON(chat)
	}
	return c.JSON(chat)
}

func (s *Server) fetchChats(c *fiber.Ctx) error {
	chats, err := s.chats.ListChats(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(chats)
}

func (s *Server) getChat(c *fiber.Ctx) error {
	chat, err := s.chats.GetChat(c.UserContext(), c.Params("chatId"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(chat)
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req createGroupReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	chat, err := s.chats.CreateGroup(c.UserContext(), userID(c), req.Name, req.Users, req.GroupImage)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

func (s *Server) renameGroup(c *fiber.Ctx) error {
	var req renameGroupReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	chat, err := s.chats.RenameGroup(c.UserContext(), req.ChatID, userID(c), req.ChatName)
	if err != nil {
		return err
	}
	return c.JSON(chat)
}

func (s *Server) addToGroup(c *fiber.Ctx) error {
	var req addToGroupReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	chat, err := s.chats.AddMembers(c.UserContext(), req.ChatID, userID(c), req.Users)
	if err != nil {
		return err
	}
	return c.JSON(chat)
}

func (s *Server) removeFromGroup(c *fiber.Ctx) error {
	var req removeFromGroupReq
	if err := s.bind(c, &req); err != nil {
		return err
	}
	chat, err := s.chats.RemoveMember(c.UserContext(), req.ChatID, userID(c), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(chat)
}

func (s *Server) deleteChat(c *fiber.Ctx) error {
	if err := s.chats.DeleteChat(c.UserContext(), c.Params("chatId"), userID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "chat deleted"})
}
