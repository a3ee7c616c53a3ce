package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
)

// idList accepts a JSON array of ids or a string holding one, which is how
// web clients posting multipart forms send member lists.
type idList []string

func (l *idList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		b = []byte(s)
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}

type accessChatReq struct {
	UserID string `json:"userId" validate:"required"`
}

type createGroupReq struct {
	Name       string `json:"name" validate:"required"`
	Users      idList `json:"users" validate:"required,min=1"`
	GroupImage string `json:"groupImage" validate:"omitempty,url"`
}

type renameGroupReq struct {
	ChatID   string `json:"chatId" validate:"required"`
	ChatName string `json:"chatName" validate:"required"`
}

type addToGroupReq struct {
	ChatID string `json:"chatId" validate:"required"`
	Users  idList `json:"users" validate:"required,min=1"`
}

type removeFromGroupReq struct {
	ChatID string `json:"chatId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type sendMessageReq struct {
	Content     string   `json:"content"`
	Chat        string   `json:"chat" validate:"required"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,url"`
}

var fieldMessages = map[string]string{
	"UserID":      "userId param not sent with request",
	"Name":        "please provide a group name",
	"Users":       "please provide the users",
	"GroupImage":  "groupImage must be a url",
	"ChatID":      "chatId is required",
	"ChatName":    "chatName is required",
	"Chat":        "chat id is required",
	"Attachments": "attachments must be urls",
}

// bind parses the JSON body into dst and validates it.
func (s *Server) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if msg, ok := fieldMessages[verrs[0].StructField()]; ok {
				return apperr.BadRequest(msg)
			}
			return apperr.BadRequest(verrs[0].Error())
		}
		return apperr.BadRequest("invalid request body")
	}
	return nil
}
