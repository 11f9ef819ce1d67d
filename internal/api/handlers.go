package api

import (
	"context"
	"errors"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/katakuxiko/sasgpt/internal/ingest"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/katakuxiko/sasgpt/internal/util"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SessionCookie holds the chat session id.
const SessionCookie = "sasgpt_session"

// Chatter — операции чата, которые нужны веб-интерфейсу
type Chatter interface {
	ChemicalName(ctx context.Context, id string) string
	History(ctx context.Context, sid string) ([]model.ChatMessage, error)
	Ask(ctx context.Context, sid, chemicalID, message string) (string, []model.ChatMessage, error)
	Clear(ctx context.Context, sid string) ([]model.ChatMessage, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]openai.Model, error)
}

// IngestFunc загружает файл в хранилище с указанным именем
type IngestFunc func(ctx context.Context, storeName, path string) ([]ingest.Result, error)

type Options struct {
	Title   string
	Caption string
	// UploadDir is where uploaded documents are kept; ingestion is disabled when Ingest is nil.
	UploadDir    string
	DefaultStore string
	Ingest       IngestFunc
	Logger       *zap.Logger
}

// Handler хранит зависимости для обработчиков
type Handler struct {
	chat   Chatter
	models ModelLister
	opts   Options
	page   *template.Template
	log    *zap.Logger

	ingestMu sync.Mutex
}

// NewHandler конструктор
func NewHandler(chat Chatter, models ModelLister, opts Options) *Handler {
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join("data", "uploads")
	}
	return &Handler{
		chat:   chat,
		models: models,
		opts:   opts,
		page:   template.Must(template.ParseFS(webFS, "web/index.html")),
		log:    opts.Logger,
	}
}

// Health — простая проверка
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// ListModels — список моделей OpenAI-совместимого сервера
func (h *Handler) ListModels(c *fiber.Ctx) error {
	if h.models == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "model listing is not available"})
	}
	models, err := h.models.ListModels(c.UserContext())
	if err != nil {
		h.log.Error("list models", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(models)
}

type pageData struct {
	Title      string
	Caption    string
	ChemicalID string
	Banner     string
	History    []model.ChatMessage
}

// Index — страница чата для вещества ?id=
func (h *Handler) Index(c *fiber.Ctx) error {
	sid := h.session(c)
	id := c.Query("id")
	history, err := h.chat.History(c.UserContext(), sid)
	if err != nil {
		h.log.Error("load history", zap.String("session", sid), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to load history")
	}

	var buf strings.Builder
	err = h.page.Execute(&buf, pageData{
		Title:      h.opts.Title,
		Caption:    h.opts.Caption,
		ChemicalID: id,
		Banner:     service.Banner(h.chat.ChemicalName(c.UserContext(), id)),
		History:    history,
	})
	if err != nil {
		h.log.Error("render page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render page")
	}
	c.Type("html", "utf-8")
	return c.SendString(buf.String())
}

// Chat — один ход диалога
func (h *Handler) Chat(c *fiber.Ctx) error {
	var req model.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request, expected JSON: {\"message\":\"...\"}"})
	}
	if req.ChemicalID == "" {
		req.ChemicalID = c.Query("id")
	}
	sid := h.session(c)
	reply, history, err := h.chat.Ask(c.UserContext(), sid, req.ChemicalID, req.Message)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		h.log.Error("session store", zap.String("session", sid), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save conversation"})
	}
	return c.JSON(model.AskResponse{Answer: reply, History: history})
}

func (h *Handler) History(c *fiber.Ctx) error {
	history, err := h.chat.History(c.UserContext(), h.session(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"history": history})
}

// Clear — кнопка «清除查詢記錄»
func (h *Handler) Clear(c *fiber.Ctx) error {
	history, err := h.chat.Clear(c.UserContext(), h.session(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"history": history})
}

// Ingest — загрузка документа (PDF/TXT), разбиение, embeddings, сохранение в хранилище
func (h *Handler) Ingest(c *fiber.Ctx) error {
	if h.opts.Ingest == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "ingestion is disabled"})
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required (form field: file)"})
	}
	if !ingest.Supported(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported file type"})
	}
	storeName := c.FormValue("store", h.opts.DefaultStore)

	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		h.log.Error("mkdir", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to prepare storage"})
	}
	savePath := filepath.Join(h.opts.UploadDir, util.Timestamped(filepath.Base(file.Filename)))
	if err := c.SaveFile(file, savePath); err != nil {
		h.log.Error("save file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save file"})
	}

	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Minute)
	defer cancel()
	results, err := h.opts.Ingest(ctx, storeName, savePath)
	if err != nil {
		h.log.Error("ingest", zap.String("store", storeName), zap.String("file", savePath), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(results) == 0 || results[0].Saved == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no chunks saved", "results": results})
	}
	return c.JSON(fiber.Map{"status": "ok", "store": storeName, "result": results[0]})
}

// session returns the caller's session id, issuing a cookie for new visitors.
func (h *Handler) session(c *fiber.Ctx) string {
	if sid := c.Cookies(SessionCookie); sid != "" {
		if _, err := uuid.Parse(sid); err == nil {
			return sid
		}
	}
	sid := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Request().Header.SetCookie(SessionCookie, sid)
	return sid
}
